package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// Notifications is the notification repository surface.
type Notifications interface {
	List(ctx context.Context, unreadOnly bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, id uint64) error
	MarkMany(ctx context.Context, ids []uint64) error
	MarkAll(ctx context.Context) error
}

// NotificationHandler serves /v1/notifications.
type NotificationHandler struct {
	Repo Notifications
}

func NewNotificationHandler(r Notifications) *NotificationHandler { return &NotificationHandler{Repo: r} }

func (h *NotificationHandler) List(c echo.Context) error {
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	list, err := h.Repo.List(c.Request().Context(), unread)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []model.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": list})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Repo.MarkRead(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type markManyReq struct {
	IDs []uint64 `json:"ids"`
}

func (h *NotificationHandler) MarkMany(c echo.Context) error {
	var req markManyReq
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperror.Validation("invalid body"))
	}
	if err := h.Repo.MarkMany(c.Request().Context(), req.IDs); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAll(c echo.Context) error {
	if err := h.Repo.MarkAll(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
