// Package repository wraps the remote booking API in typed repositories.
// Every call goes through the gateway, so repositories never see tokens
// or 401s. Failures come back as apperror sentinels: a seat that was taken
// by someone else is reported as apperror.ErrConflict whether the backend
// answers 409 or a 400 naming the unavailable seats.
package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/gateway"
)

// API is the part of the gateway the repositories use.
type API interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.Response, error)
	JSON(ctx context.Context, req gateway.Request, out any) error
}

// conflictMarkers appear in 400 bodies that reject already-taken seats.
var conflictMarkers = []string{"unavailable", "no_disponibles", "no disponibles"}

// mapConflict marks seat-availability rejections as ErrConflict while
// keeping the underlying *apperror.HTTPError reachable with errors.As.
func mapConflict(err error) error {
	var he *apperror.HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusBadRequest {
		return err
	}
	body := strings.ToLower(string(he.Body))
	for _, m := range conflictMarkers {
		if strings.Contains(body, m) {
			return fmt.Errorf("%w: %w", apperror.ErrConflict, err)
		}
	}
	return err
}
