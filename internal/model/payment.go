package model

// Payment methods accepted by POST /pagos/crear_pago/.
const (
	MetodoTarjeta       = "tarjeta"
	MetodoEfectivo      = "efectivo"
	MetodoTransferencia = "transferencia"
)

// EstadoCompletado is reported for a finished checkout.
const EstadoCompletado = "completado"

// PaymentRequest is the body of POST /pagos/crear_pago/.
type PaymentRequest struct {
	Reserva uint64 `json:"reserva"`
	Metodo  string `json:"metodo"`
	Monto   Money  `json:"monto"`
}

// PaymentResponse is what POST /pagos/crear_pago/ returns: either a card
// intent (ClientSecret + PagoID) or a finalized record for cash/transfer.
type PaymentResponse struct {
	ClientSecret string `json:"client_secret,omitempty"`
	PagoID       Ref    `json:"pago_id,omitempty"`
	ID           uint64 `json:"id,omitempty"`
	Estado       string `json:"estado,omitempty"`
	Metodo       string `json:"metodo,omitempty"`
	Monto        *Money `json:"monto,omitempty"`
}

// IsIntent reports whether the response asks for card confirmation.
func (p PaymentResponse) IsIntent() bool { return p.ClientSecret != "" }

// PaymentIntent is the transient card-payment handle for one reservation
// attempt. It is discarded once the attempt completes or is abandoned.
type PaymentIntent struct {
	ClientSecret string `json:"-"`
	PaymentID    uint64 `json:"payment_id"`
	Status       string `json:"status"`
}

// PaymentRecord is a finalized payment.
type PaymentRecord struct {
	ID     uint64 `json:"id"`
	Estado string `json:"estado"`
	Metodo string `json:"metodo"`
	Monto  Money  `json:"monto"`
}

// ConfirmRequest is the body of POST /pagos/{id}/confirmar/.
type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}
