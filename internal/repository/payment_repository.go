package repository

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/gateway"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// PaymentRepo talks to the /pagos/ resource.
type PaymentRepo struct {
	api API
}

func NewPaymentRepo(api API) *PaymentRepo { return &PaymentRepo{api: api} }

// Create asks the backend to start a payment for a reservation. Card
// payments come back as an intent (client secret + pago_id); cash and
// transfer payments come back finalized.
func (r *PaymentRepo) Create(ctx context.Context, req model.PaymentRequest) (model.PaymentResponse, error) {
	if req.Reserva == 0 {
		return model.PaymentResponse{}, apperror.Validation("reservation id is required")
	}
	var out model.PaymentResponse
	err := r.api.JSON(ctx, gateway.Request{Method: http.MethodPost, Path: "/pagos/crear_pago/", Body: req}, &out)
	if err != nil {
		return model.PaymentResponse{}, fmt.Errorf("create payment: %w", mapConflict(err))
	}
	return out, nil
}

// Confirm tells the backend that the provider captured the intent, which
// marks the reservation confirmed.
func (r *PaymentRepo) Confirm(ctx context.Context, paymentID uint64, intentID string) (model.PaymentRecord, error) {
	path := "/pagos/" + strconv.FormatUint(paymentID, 10) + "/confirmar/"
	var out model.PaymentRecord
	err := r.api.JSON(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   model.ConfirmRequest{PaymentIntentID: intentID},
	}, &out)
	if err != nil {
		return model.PaymentRecord{}, fmt.Errorf("confirm payment %d: %w", paymentID, err)
	}
	return out, nil
}
