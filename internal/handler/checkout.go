package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/checkout"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/payment"
)

// CheckoutHandler serves /v1/checkout.
type CheckoutHandler struct {
	Checkout *checkout.Orchestrator
}

func NewCheckoutHandler(o *checkout.Orchestrator) *CheckoutHandler { return &CheckoutHandler{Checkout: o} }

type checkoutReq struct {
	Trip   uint64                `json:"trip"`
	Seats  []model.SeatSelection `json:"seats"`
	Method string                `json:"method"`
}

// respondAttempt writes the attempt snapshot, or the error together with
// the snapshot so the UI can offer the matching retry.
func respondAttempt(c echo.Context, okStatus int, a *checkout.Attempt, err error) error {
	if err != nil {
		body := errorBody(err)
		if a != nil {
			body["attempt"] = a.Snapshot()
		}
		return c.JSON(statusFor(err), body)
	}
	return c.JSON(okStatus, a.Snapshot())
}

func (h *CheckoutHandler) attempt(c echo.Context) (*checkout.Attempt, error) {
	a, ok := h.Checkout.Attempt(c.Param("id"))
	if !ok {
		return nil, fmt.Errorf("%w: checkout %s", apperror.ErrNotFound, c.Param("id"))
	}
	return a, nil
}

// Create starts a checkout and places the hold.
func (h *CheckoutHandler) Create(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperror.Validation("invalid body"))
	}
	a := h.Checkout.Begin(req.Trip, req.Seats, req.Method)
	ctx, cancel := stepContext(c)
	defer cancel()
	err := a.Hold(ctx)
	if err != nil && a.Status() == checkout.CollectingAmount {
		// nothing was sent; no attempt worth keeping
		h.Checkout.Forget(a.ID())
		return respondError(c, err)
	}
	return respondAttempt(c, http.StatusCreated, a, err)
}

// Get returns the attempt snapshot.
func (h *CheckoutHandler) Get(c echo.Context) error {
	a, err := h.attempt(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, a.Snapshot())
}

// Card submits the tokenized card.
func (h *CheckoutHandler) Card(c echo.Context) error {
	a, err := h.attempt(c)
	if err != nil {
		return respondError(c, err)
	}
	var tok payment.CardToken
	if err := c.Bind(&tok); err != nil {
		return respondError(c, apperror.Validation("invalid body"))
	}
	ctx, cancel := stepContext(c)
	defer cancel()
	return respondAttempt(c, http.StatusOK, a, a.Pay(ctx, payment.Static(tok)))
}

// RetryConfirmation re-sends the backend confirmation of a captured payment.
func (h *CheckoutHandler) RetryConfirmation(c echo.Context) error {
	a, err := h.attempt(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := stepContext(c)
	defer cancel()
	return respondAttempt(c, http.StatusOK, a, a.RetryConfirmation(ctx))
}

// RetryPayment requests a fresh intent for the same hold.
func (h *CheckoutHandler) RetryPayment(c echo.Context) error {
	a, err := h.attempt(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := stepContext(c)
	defer cancel()
	return respondAttempt(c, http.StatusOK, a, a.RetryPayment(ctx))
}

// Delete cancels an attempt awaiting its card and forgets it. Attempts
// with a captured but unconfirmed payment, or with a step running, are
// kept.
func (h *CheckoutHandler) Delete(c echo.Context) error {
	a, err := h.attempt(c)
	if err != nil {
		return respondError(c, err)
	}
	switch a.Status() {
	case checkout.AwaitingCard:
		if err := a.Cancel(); err != nil {
			return respondError(c, err)
		}
	case checkout.CollectingAmount, checkout.Completed, checkout.Failed, checkout.Canceled:
	default:
		return respondError(c, fmt.Errorf("%w: checkout is %s", apperror.ErrInvalidState, a.Status()))
	}
	h.Checkout.Forget(a.ID())
	return c.NoContent(http.StatusNoContent)
}
