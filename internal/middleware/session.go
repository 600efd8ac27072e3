package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/model"
)

// Context keys set by RequireSession.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// SessionSource reports the current session; *session.Manager satisfies it.
type SessionSource interface {
	Current() (model.Session, bool)
}

// RequireSession rejects requests while no session exists, telling the UI
// to go back to the login surface. An expired access token is not
// rejected here: the gateway refreshes it on the first 401.
func RequireSession(src SessionSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := src.Current()
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error":    "login required",
					"kind":     "auth_invalid",
					"redirect": "/login",
				})
			}
			c.Set(CtxUserID, sess.User.ID)
			c.Set(CtxRole, sess.User.Rol)
			return next(c)
		}
	}
}

// UserID returns the id RequireSession stored, or 0.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(CtxUserID).(uint64)
	return id
}
