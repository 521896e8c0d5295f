// Package v1 provides the HTTP handlers of the bagdesk API.
package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/oddrm/pse25/internal/catalog"
	"github.com/oddrm/pse25/internal/repository"
	"github.com/oddrm/pse25/internal/service"
	"github.com/oddrm/pse25/internal/ws"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	stream  *ws.Server
}

// NewHandler creates a new handler. stream may be nil, which leaves
// /v1/stream unregistered.
func NewHandler(svc *service.Service, stream *ws.Server) *Handler {
	return &Handler{
		service: svc,
		stream:  stream,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Plugins and runs
	e.GET("/v1/plugins", h.ListPlugins)
	e.GET("/v1/plugins/:plugin_id", h.GetPlugin)
	e.POST("/v1/plugins/:plugin_id/enable", h.EnablePlugin)
	e.POST("/v1/plugins/:plugin_id/disable", h.DisablePlugin)
	e.POST("/v1/plugins/:plugin_id/runs", h.StartRun)
	e.GET("/v1/runs", h.ListRuns)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/logs", h.ListLogs)

	// Entries
	e.GET("/v1/entries", h.ListEntries)
	e.POST("/v1/entries", h.CreateEntry)
	e.GET("/v1/entries/:entry_id", h.GetEntry)
	e.GET("/v1/paths", h.GetEntryByPath)
	e.GET("/v1/entries/:entry_id/sequences", h.GetSequences)
	e.POST("/v1/entries/:entry_id/sequences", h.AddSequence)
	e.PUT("/v1/entries/:entry_id/sequences/:sequence_id", h.UpdateSequence)
	e.DELETE("/v1/entries/:entry_id/sequences/:sequence_id", h.RemoveSequence)
	e.PUT("/v1/entries/:entry_id/tags", h.AddTag)
	e.DELETE("/v1/entries/:entry_id/tags/:tag", h.RemoveTag)
	e.GET("/v1/entries/:entry_id/metadata", h.GetMetadata)
	e.PUT("/v1/entries/:entry_id/metadata", h.UpdateMetadata)

	if h.stream != nil {
		e.GET("/v1/stream", h.stream.HandleWebSocket)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// serviceError maps service errors to status codes.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, repository.ErrInvalidSequence):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, catalog.ErrPluginNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}

func intParam(c echo.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	return v, err == nil
}

func int64Param(c echo.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	return v, err == nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
