package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/checkout"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/reconcile"
)

// TripLister returns the caller's current trip listing.
type TripLister interface {
	List(ctx context.Context) ([]model.Trip, error)
}

// ViewHandler serves /v1/views: one view per screen activation that
// reconciles pending reservations.
type ViewHandler struct {
	Scanner  *reconcile.Scanner
	Trips    TripLister
	Checkout *checkout.Orchestrator
}

func NewViewHandler(s *reconcile.Scanner, trips TripLister, o *checkout.Orchestrator) *ViewHandler {
	return &ViewHandler{Scanner: s, Trips: trips, Checkout: o}
}

type viewResp struct {
	View    string               `json:"view"`
	Pending reconcile.PendingSet `json:"pending"`
}

func (h *ViewHandler) view(c echo.Context) (*reconcile.View, error) {
	v, ok := h.Scanner.View(c.Param("id"))
	if !ok {
		return nil, fmt.Errorf("%w: view %s", apperror.ErrNotFound, c.Param("id"))
	}
	return v, nil
}

// Mount activates a view and runs its scan.
func (h *ViewHandler) Mount(c echo.Context) error {
	v := h.Scanner.Mount()
	ctx, cancel := stepContext(c)
	defer cancel()
	set, err := v.Scan(ctx)
	if err != nil {
		body := errorBody(err)
		body["view"] = v.ID()
		return c.JSON(statusFor(err), body)
	}
	return c.JSON(http.StatusCreated, viewResp{View: v.ID(), Pending: set})
}

// Pending returns the view's scan result, scanning if it has not yet.
func (h *ViewHandler) Pending(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := stepContext(c)
	defer cancel()
	set, err := v.Scan(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResp{View: v.ID(), Pending: set})
}

// Refresh rescans the view.
func (h *ViewHandler) Refresh(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := stepContext(c)
	defer cancel()
	set, err := v.Refresh(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewResp{View: v.ID(), Pending: set})
}

// Unmount tears the view down.
func (h *ViewHandler) Unmount(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return respondError(c, err)
	}
	v.Unmount()
	return c.NoContent(http.StatusNoContent)
}

// Resume re-enters checkout for a pending reservation of this view.
func (h *ViewHandler) Resume(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "reservation")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := stepContext(c)
	defer cancel()
	listing, err := h.Trips.List(ctx)
	if err != nil {
		return respondError(c, err)
	}
	a, err := v.Resume(ctx, id, listing, h.Checkout)
	if a == nil && err != nil {
		return respondError(c, err)
	}
	return respondAttempt(c, http.StatusCreated, a, err)
}
