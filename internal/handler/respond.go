// Package handler implements the companion server's HTTP endpoints. The
// handlers are thin: they bind input, call the session manager, the
// checkout orchestrator or the scanner, and map errors to a status plus a
// stable "kind" the UI uses to pick a recovery (retry, log in again,
// contact support).
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
)

// stepTimeout bounds one checkout step.
const stepTimeout = 30 * time.Second

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch apperror.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "invalid_credentials", "auth_invalid":
		return http.StatusUnauthorized
	case "auth_expired", "network":
		return http.StatusServiceUnavailable
	case "provider_decline":
		return http.StatusPaymentRequired
	case "partial_confirmation":
		return http.StatusBadGateway
	case "conflict", "amount_mismatch", "invalid_state", "canceled":
		return http.StatusConflict
	case "hold_expired", "view_closed":
		return http.StatusGone
	case "locate_manually":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	}
	var he *apperror.HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// errorBody builds the JSON error payload for err.
func errorBody(err error) echo.Map {
	kind := apperror.Kind(err)
	body := echo.Map{"error": err.Error(), "kind": kind}
	switch kind {
	case "auth_invalid":
		body["redirect"] = "/login"
	case "auth_expired", "network":
		body["retry"] = true
	}
	var de *apperror.ProviderDeclineError
	if errors.As(err, &de) {
		body["provider_message"] = de.Message
		body["retry"] = true
	}
	var pe *apperror.PartialConfirmationError
	if errors.As(err, &pe) {
		body["payment_id"] = pe.PaymentID
		body["payment_intent_id"] = pe.PaymentIntentID
		body["support"] = "Your card was charged but the booking is not confirmed yet. Retry the confirmation or contact support with the payment id."
	}
	return body
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= 500 {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, errorBody(err))
}

// stepContext detaches a checkout step from the browser request so a
// dropped connection cannot abort a payment halfway.
func stepContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request().Context()), stepTimeout)
}

func paramID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation("invalid %s", name)
	}
	return id, nil
}
