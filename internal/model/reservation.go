package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Reservation states as reported by the backend.
const (
	EstadoPendientePago = "pendiente_pago"
	EstadoConfirmada    = "confirmada"
	EstadoCancelada     = "cancelada"
)

// Reservation is the client's view of a booking owned by the backend. The
// client never changes Estado itself; it only requests transitions.
//
// Fields:
//  ID           – reservation id.
//  Estado       – pendiente_pago, confirmada or cancelada.
//  Asientos     – seats held by the reservation.
//  Total        – total amount the backend will charge.
//  Pagado       – whether the backend considers it paid.
//  ExpiraEn     – hold expiry; nil when the backend did not send one.
//  EstaExpirada – expiry flag computed by the backend, when present.
//  Viaje        – trip the reservation belongs to.
type Reservation struct {
	ID           uint64          `json:"id"`
	Estado       string          `json:"estado"`
	Asientos     []SeatSelection `json:"asientos"`
	Total        Money           `json:"total"`
	Pagado       bool            `json:"pagado"`
	ExpiraEn     *time.Time      `json:"expira_en,omitempty"`
	EstaExpirada bool            `json:"esta_expirada,omitempty"`
	Viaje        Ref             `json:"viaje"`
}

// Expired reports whether a pending hold has lapsed at now. Reservations in
// any other state never expire from the client's point of view.
func (r Reservation) Expired(now time.Time) bool {
	if r.Estado != EstadoPendientePago {
		return false
	}
	if r.EstaExpirada {
		return true
	}
	return r.ExpiraEn != nil && !r.ExpiraEn.After(now)
}

// Pending reports whether the reservation still awaits payment and can be
// paid at now.
func (r Reservation) Pending(now time.Time) bool {
	return r.Estado == EstadoPendientePago && !r.Expired(now)
}

// HoldRequest is the body of POST /reservas/.
type HoldRequest struct {
	Viaje    uint64          `json:"viaje"`
	Asientos []SeatSelection `json:"asientos"`
	Total    Money           `json:"total"`
}

// Ref is a foreign key that the backend sends either as a bare id, a
// numeric string, or a nested object carrying an "id".
type Ref uint64

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*r = 0
		return nil
	case len(b) > 0 && b[0] == '{':
		var obj struct {
			ID Ref `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*r = obj.ID
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("ref %q: %w", s, err)
		}
		*r = Ref(n)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	*r = Ref(n)
	return nil
}
