package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
)

// StripeProvider confirms PaymentIntents through the Stripe API.
type StripeProvider struct {
	client paymentintent.Client
	log    *slog.Logger
}

// NewStripeProvider builds a provider for key. backend may be nil to use
// the default Stripe API backend.
func NewStripeProvider(key string, backend stripe.Backend, logger *slog.Logger) *StripeProvider {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeProvider{
		client: paymentintent.Client{B: backend, Key: key},
		log:    logger.With("component", "stripe"),
	}
}

// ConfirmCardPayment confirms the intent behind clientSecret with the
// tokenized card. Card errors and any final status other than succeeded
// come back as *apperror.ProviderDeclineError carrying Stripe's message.
func (p *StripeProvider) ConfirmCardPayment(ctx context.Context, clientSecret string, card CardToken) (Confirmation, error) {
	id, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return Confirmation{}, err
	}
	if card.PaymentMethod == "" {
		return Confirmation{}, apperror.Validation("card token is required")
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(card.PaymentMethod),
	}
	params.Context = ctx

	pi, err := p.client.Confirm(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type != stripe.ErrorTypeAPI {
			p.log.Info("card declined", "intent", id, "code", se.Code, "decline_code", se.DeclineCode)
			return Confirmation{}, &apperror.ProviderDeclineError{Code: string(se.Code), Message: se.Msg}
		}
		return Confirmation{}, fmt.Errorf("%w: confirm intent %s: %v", apperror.ErrNetwork, id, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		p.log.Info("intent not captured", "intent", id, "status", pi.Status)
		return Confirmation{}, &apperror.ProviderDeclineError{
			Code:    string(pi.Status),
			Message: "payment was not completed (" + string(pi.Status) + ")",
		}
	}
	return Confirmation{IntentID: pi.ID, Status: string(pi.Status)}, nil
}
