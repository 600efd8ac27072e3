package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/apperror"
	"github.com/iliyamo/fleet-booking-client/internal/model"
	"github.com/iliyamo/fleet-booking-client/internal/session"
)

// Sessions is the session manager surface the handlers use.
type Sessions interface {
	Login(ctx context.Context, c model.Credentials) (*model.Session, error)
	Logout(ctx context.Context)
	WhoAmI(ctx context.Context) (model.User, error)
	Current() (model.Session, bool)
	State() session.State
}

// SessionHandler serves /v1/session.
type SessionHandler struct {
	Sessions Sessions
}

func NewSessionHandler(s Sessions) *SessionHandler { return &SessionHandler{Sessions: s} }

type sessionResp struct {
	State     session.State `json:"state"`
	User      *model.User   `json:"user"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

func (h *SessionHandler) status() sessionResp {
	resp := sessionResp{State: h.Sessions.State()}
	if sess, ok := h.Sessions.Current(); ok {
		u := sess.User
		resp.User = &u
		if !sess.ExpiresAt.IsZero() {
			exp := sess.ExpiresAt
			resp.ExpiresAt = &exp
		}
	}
	return resp
}

// Login exchanges credentials for a session.
func (h *SessionHandler) Login(c echo.Context) error {
	var req model.Credentials
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperror.Validation("invalid body"))
	}
	if _, err := h.Sessions.Login(c.Request().Context(), req); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, h.status())
}

// Logout always succeeds locally, even when the backend is unreachable.
func (h *SessionHandler) Logout(c echo.Context) error {
	h.Sessions.Logout(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// Status reports the session state without calling the backend.
func (h *SessionHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status())
}

// Me refreshes and returns the profile.
func (h *SessionHandler) Me(c echo.Context) error {
	u, err := h.Sessions.WhoAmI(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
