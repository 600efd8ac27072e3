package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health reports that the companion server is up. It does not call the
// booking API.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
