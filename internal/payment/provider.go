// Package payment adapts the card payment provider. The client never sees
// card numbers: a widget tokenizes the card (CardCollector) and the
// provider confirms the backend-created intent with that token.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CardToken is the tokenized card produced by the provider's widget, e.g.
// a Stripe PaymentMethod id.
type CardToken struct {
	PaymentMethod string `json:"payment_method"`
}

// Confirmation is a successful provider confirmation.
type Confirmation struct {
	IntentID string
	Status   string
}

// Provider confirms a card payment for a backend-created intent.
type Provider interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, card CardToken) (Confirmation, error)
}

// CardCollector gathers card details from the user and returns a token.
// Returning an error aborts the payment.
type CardCollector interface {
	CollectCard(ctx context.Context) (CardToken, error)
}

// CollectorFunc adapts a function to CardCollector.
type CollectorFunc func(ctx context.Context) (CardToken, error)

func (f CollectorFunc) CollectCard(ctx context.Context) (CardToken, error) { return f(ctx) }

// Static returns a collector that always yields tok, for callers that
// already hold a token (the companion server receives it in the request).
func Static(tok CardToken) CardCollector {
	return CollectorFunc(func(context.Context) (CardToken, error) { return tok, nil })
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("card payments are not configured")

// Disabled is the provider used when no provider credentials are set.
type Disabled struct{}

func (Disabled) ConfirmCardPayment(context.Context, string, CardToken) (Confirmation, error) {
	return Confirmation{}, ErrNotConfigured
}

// IntentIDFromSecret derives the intent id from a client secret of the
// form "<intent id>_secret_<random>".
func IntentIDFromSecret(secret string) (string, error) {
	id, _, ok := strings.Cut(secret, "_secret_")
	if !ok || id == "" {
		return "", fmt.Errorf("malformed client secret")
	}
	return id, nil
}
