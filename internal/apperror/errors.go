// Package apperror defines the error taxonomy shared by the session,
// gateway, checkout and reconcile layers. Sentinel values let callers
// distinguish failure scenarios with errors.Is; typed errors carry the
// extra detail (HTTP status, provider message) a handler needs to pick
// the right recovery message for the user.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks malformed or missing client input. Fix locally,
	// do not retry.
	ErrValidation = errors.New("validation error")
	// ErrConflict is returned when a scarce resource (seats) is no longer
	// available. Surface it; never retry automatically.
	ErrConflict = errors.New("conflict")
	// ErrAuthExpired means the access token is stale. The gateway absorbs
	// it; callers only see it when a refresh failed transiently.
	ErrAuthExpired = errors.New("session expired")
	// ErrAuthInvalid means the refresh token itself was rejected. The
	// session is cleared and the user must log in again.
	ErrAuthInvalid = errors.New("session invalid")
	// ErrInvalidCredentials is returned by login for a rejected email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProviderDecline marks a rejection by the card payment provider.
	ErrProviderDecline = errors.New("payment declined by provider")
	// ErrPartialConfirmation means the provider captured the payment but
	// the backend did not acknowledge it.
	ErrPartialConfirmation = errors.New("payment captured but not confirmed")
	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("network error")
	// ErrAmountMismatch is a hard failure: the backend total differs from
	// the total the user saw.
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrHoldExpired is returned when resuming a hold past its expira_en.
	ErrHoldExpired = errors.New("hold expired")
	// ErrLocateManually is returned when a pending reservation's trip is not
	// part of the caller's current listing.
	ErrLocateManually = errors.New("reservation must be located manually")
	// ErrInvalidState is returned for an operation that the current state
	// machine state does not allow.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrCanceled marks an attempt aborted by the user.
	ErrCanceled = errors.New("canceled")
	// ErrViewClosed is returned when a view was torn down before its scan
	// finished; the stale result is discarded.
	ErrViewClosed = errors.New("view closed")
	// ErrNotFound maps a 404 from the backend or an unknown local id.
	ErrNotFound = errors.New("not found")
)

// HTTPError is a non-2xx backend response that was not an authorization
// failure. The gateway returns it untouched.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Is maps status codes onto the taxonomy so callers can use errors.Is
// without inspecting the status themselves.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// ProviderDeclineError carries the payment provider's message verbatim.
type ProviderDeclineError struct {
	Code    string
	Message string
}

func (e *ProviderDeclineError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
	}
	return "payment declined: " + e.Message
}

func (e *ProviderDeclineError) Is(target error) bool { return target == ErrProviderDecline }

// PartialConfirmationError is returned when the provider succeeded but the
// backend confirmation call failed. Retrying the hold would be wrong;
// only the confirmation may be retried.
type PartialConfirmationError struct {
	PaymentID       string
	PaymentIntentID string
	Cause           error
}

func (e *PartialConfirmationError) Error() string {
	return fmt.Sprintf("payment %s captured (intent %s) but not yet confirmed: %v", e.PaymentID, e.PaymentIntentID, e.Cause)
}

func (e *PartialConfirmationError) Is(target error) bool { return target == ErrPartialConfirmation }

func (e *PartialConfirmationError) Unwrap() error { return e.Cause }

// Validation builds an ErrValidation with a field-specific message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Kind returns a short stable name for err, used in JSON responses and logs.
// Order matters: the more specific kinds are checked first.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialConfirmation):
		return "partial_confirmation"
	case errors.Is(err, ErrProviderDecline):
		return "provider_decline"
	case errors.Is(err, ErrAuthInvalid):
		return "auth_invalid"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrHoldExpired):
		return "hold_expired"
	case errors.Is(err, ErrLocateManually):
		return "locate_manually"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrViewClosed):
		return "view_closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNetwork):
		return "network"
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return "http_" + strings.ToLower(strings.ReplaceAll(http.StatusText(he.Status), " ", "_"))
	}
	return "internal"
}
