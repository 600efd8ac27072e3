package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/gateway"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// ReservationRepo talks to the /reservas/ resource. A reservation is a
// time-limited hold on seats of one trip until payment confirms it.
type ReservationRepo struct {
	api API
}

// NewReservationRepo returns a ReservationRepo bound to the gateway.
func NewReservationRepo(api API) *ReservationRepo { return &ReservationRepo{api: api} }

// ReservationFilter narrows List. Zero values are omitted from the query.
type ReservationFilter struct {
	Estado string
	Viaje  uint64
}

func (f ReservationFilter) query() url.Values {
	q := url.Values{}
	if f.Estado != "" {
		q.Set("estado", f.Estado)
	}
	if f.Viaje != 0 {
		q.Set("viaje", strconv.FormatUint(f.Viaje, 10))
	}
	return q
}

// Create places a hold (POST /reservas/). Seats already taken are
// reported as apperror.ErrConflict.
func (r *ReservationRepo) Create(ctx context.Context, req model.HoldRequest) (model.Reservation, error) {
	if len(req.Asientos) == 0 {
		return model.Reservation{}, apperror.Validation("at least one seat is required")
	}
	var res model.Reservation
	err := r.api.JSON(ctx, gateway.Request{Method: http.MethodPost, Path: "/reservas/", Body: req}, &res)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("create reservation: %w", mapConflict(err))
	}
	return res, nil
}

// Get fetches one reservation.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	var res model.Reservation
	if err := r.api.JSON(ctx, gateway.Request{Method: http.MethodGet, Path: reservationPath(id)}, &res); err != nil {
		return model.Reservation{}, fmt.Errorf("get reservation %d: %w", id, err)
	}
	return res, nil
}

// Update patches the given fields of a reservation.
func (r *ReservationRepo) Update(ctx context.Context, id uint64, fields map[string]any) (model.Reservation, error) {
	var res model.Reservation
	err := r.api.JSON(ctx, gateway.Request{Method: http.MethodPatch, Path: reservationPath(id), Body: fields}, &res)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("update reservation %d: %w", id, mapConflict(err))
	}
	return res, nil
}

// Delete removes a reservation, releasing its hold.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
	if _, err := r.api.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: reservationPath(id)}); err != nil {
		return fmt.Errorf("delete reservation %d: %w", id, err)
	}
	return nil
}

// List returns the caller's reservations matching f. recognized is false
// when the response envelope had an unexpected shape; the list is then
// empty and err is nil.
func (r *ReservationRepo) List(ctx context.Context, f ReservationFilter) (list []model.Reservation, recognized bool, err error) {
	resp, err := r.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/reservas/", Query: f.query()})
	if err != nil {
		return nil, false, fmt.Errorf("list reservations: %w", err)
	}
	list, recognized = ExtractList[model.Reservation](resp.Body, "reservas", "reservations")
	return list, recognized, nil
}

func reservationPath(id uint64) string { return "/reservas/" + strconv.FormatUint(id, 10) + "/" }
