package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-booking-client/internal/handler"
	"github.com/iliyamo/fleet-booking-client/internal/middleware"
)

// RegisterViews registers the pending-reservation views under /v1/views.
func RegisterViews(e *echo.Echo, h *handler.ViewHandler, src middleware.SessionSource) {
	g := e.Group("/v1/views", middleware.RequireSession(src))
	g.POST("", h.Mount)
	g.GET("/:id/pending", h.Pending)
	g.POST("/:id/refresh", h.Refresh)
	g.DELETE("/:id", h.Unmount)
	g.POST("/:id/resume/:reservation", h.Resume)
}

// RegisterCheckout registers the checkout flow under /v1/checkout.
func RegisterCheckout(e *echo.Echo, h *handler.CheckoutHandler, src middleware.SessionSource) {
	g := e.Group("/v1/checkout", middleware.RequireSession(src))
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.POST("/:id/card", h.Card)
	g.POST("/:id/retry-confirmation", h.RetryConfirmation)
	g.POST("/:id/retry-payment", h.RetryPayment)
	g.DELETE("/:id", h.Delete)
}

// RegisterNotifications registers the notification inbox under
// /v1/notifications.
func RegisterNotifications(e *echo.Echo, h *handler.NotificationHandler, src middleware.SessionSource) {
	g := e.Group("/v1/notifications", middleware.RequireSession(src))
	g.GET("", h.List)
	g.POST("/read", h.MarkMany)
	g.POST("/read-all", h.MarkAll)
	g.POST("/:id/read", h.MarkRead)
}
