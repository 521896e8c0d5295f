package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StartRunRequest is the body of a run start. A missing entry name means a
// global run; an empty one is rejected.
type StartRunRequest struct {
	EntryName *string `json:"entry_name"`
}

// ListPlugins lists the plugin catalog.
// GET /v1/plugins
func (h *Handler) ListPlugins(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plugins": h.service.ListPlugins(),
	})
}

// GetPlugin gets one plugin.
// GET /v1/plugins/:plugin_id
func (h *Handler) GetPlugin(c echo.Context) error {
	pluginID, ok := intParam(c, "plugin_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "plugin_id must be an integer")
	}
	plugin := h.service.GetPlugin(pluginID)
	if plugin == nil {
		return errorJSON(c, http.StatusNotFound, "plugin not found")
	}
	return c.JSON(http.StatusOK, plugin)
}

// EnablePlugin allows new runs of a plugin.
// POST /v1/plugins/:plugin_id/enable
func (h *Handler) EnablePlugin(c echo.Context) error {
	return h.setEnabled(c, true)
}

// DisablePlugin refuses new runs of a plugin.
// POST /v1/plugins/:plugin_id/disable
func (h *Handler) DisablePlugin(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c echo.Context, enabled bool) error {
	pluginID, ok := intParam(c, "plugin_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "plugin_id must be an integer")
	}
	plugin, err := h.service.SetPluginEnabled(pluginID, enabled)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, plugin)
}

// StartRun starts a plugin run. Rejected starts are not errors: they answer
// 200 with started=false.
// POST /v1/plugins/:plugin_id/runs
func (h *Handler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()

	pluginID, ok := intParam(c, "plugin_id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, "plugin_id must be an integer")
	}

	var req StartRunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid request body")
		}
	}

	var entryName string
	if req.EntryName != nil {
		if *req.EntryName == "" {
			return errorJSON(c, http.StatusBadRequest, "entry_name must not be empty")
		}
		entryName = *req.EntryName
	}

	res := h.service.StartRun(ctx, pluginID, entryName)
	if !res.Started {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusAccepted, res)
}

// ListRuns lists the active runs.
// GET /v1/runs
func (h *Handler) ListRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": h.service.ListRuns(),
	})
}

// GetRun gets one active run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run := h.service.GetRun(c.Param("run_id"))
	if run == nil {
		return errorJSON(c, http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, run)
}

// ListLogs lists log entries, most recent first.
// GET /v1/logs?after_id=&limit=
func (h *Handler) ListLogs(c echo.Context) error {
	afterID, err := queryInt(c, "after_id", 0)
	if err != nil || afterID < 0 {
		return errorJSON(c, http.StatusBadRequest, "after_id must be a non-negative integer")
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil || limit < 0 {
		return errorJSON(c, http.StatusBadRequest, "limit must be a non-negative integer")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"logs": h.service.Logs(afterID, limit),
	})
}
