package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/gateway"
	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// NotificationRepo reads and acknowledges in-app notifications.
type NotificationRepo struct {
	api API
}

func NewNotificationRepo(api API) *NotificationRepo { return &NotificationRepo{api: api} }

// List returns the caller's notifications, only unread ones when
// unreadOnly is set.
func (r *NotificationRepo) List(ctx context.Context, unreadOnly bool) ([]model.Notification, error) {
	var q url.Values
	if unreadOnly {
		q = url.Values{"leida": {"false"}}
	}
	resp, err := r.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/notificaciones/", Query: q})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	list, _ := ExtractList[model.Notification](resp.Body, "notificaciones", "notifications")
	return list, nil
}

// MarkRead marks one notification as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, id uint64) error {
	path := "/notificaciones/" + strconv.FormatUint(id, 10) + "/leer/"
	if _, err := r.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: path}); err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}

// MarkMany marks the given notifications as read in one call.
func (r *NotificationRepo) MarkMany(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return apperror.Validation("no notification ids given")
	}
	req := gateway.Request{
		Method: http.MethodPost,
		Path:   "/notificaciones/marcar_leidas/",
		Body:   map[string][]uint64{"ids": ids},
	}
	if _, err := r.api.Do(ctx, req); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

// MarkAll marks every notification of the caller as read.
func (r *NotificationRepo) MarkAll(ctx context.Context) error {
	if _, err := r.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/notificaciones/marcar_todas/"}); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
