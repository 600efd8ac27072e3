package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/iliyamo/fleet-booking-client/internal/gateway"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// TripRepo reads the caller's current trip listing.
type TripRepo struct {
	api API
}

func NewTripRepo(api API) *TripRepo { return &TripRepo{api: api} }

// List returns the trips currently offered to the caller. An unrecognized
// envelope is an empty listing.
func (r *TripRepo) List(ctx context.Context) ([]model.Trip, error) {
	resp, err := r.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/viajes/"})
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	trips, _ := ExtractList[model.Trip](resp.Body, "viajes", "trips")
	return trips, nil
}
