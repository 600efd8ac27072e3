// Package router registers the companion server's HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/handler"
	"github.com/iliyamo/fleet-booking-client/internal/middleware"
)

// RegisterRoutes registers endpoints that need no session.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterSession registers /v1/session. Login is wrapped by throttle;
// /me needs a live session, the others do not.
func RegisterSession(e *echo.Echo, h *handler.SessionHandler, src middleware.SessionSource, throttle echo.MiddlewareFunc) {
	g := e.Group("/v1/session")
	g.POST("/login", h.Login, throttle)
	g.POST("/logout", h.Logout)
	g.GET("", h.Status)
	g.GET("/me", h.Me, middleware.RequireSession(src))
}
