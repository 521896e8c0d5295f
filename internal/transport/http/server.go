// Package http provides the HTTP server of bagdesk.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/oddrm/pse25/internal/service"
	v1 "github.com/oddrm/pse25/internal/transport/http/v1"
	"github.com/oddrm/pse25/internal/ws"
)

// NewServer creates and configures the HTTP server. stream may be nil.
func NewServer(svc *service.Service, stream *ws.Server, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, stream)

	// Register Routes
	v1Handler.RegisterRoutes(e)

	return e
}
