package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nexushub/portal/internal/orchestrator"
	"github.com/nexushub/portal/internal/plan"
)

// PlanRequest asks for a plan against a manifest.
type PlanRequest struct {
	ManifestID string `json:"manifest_id"`
	Prompt     string `json:"prompt"`
}

// Plan asks the orchestrator for a plan and returns it with its approval preview.
// POST /api/plan
func (h *Handler) Plan(c echo.Context) error {
	ctx := c.Request().Context()

	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt is required"})
	}
	if req.ManifestID == "" {
		req.ManifestID = h.cfg.ManifestID
	}

	p, err := h.orch.Plan(ctx, &orchestrator.PlanRequest{ManifestID: req.ManifestID, Prompt: req.Prompt})
	if err != nil {
		h.logger.Warn("planning failed", "manifest_id", req.ManifestID, "error", err)
		return errorJSON(c, err)
	}
	p.Prompt = req.Prompt

	agents, err := h.directory.Cached(ctx)
	if err != nil {
		h.logger.Warn("agent list unavailable for plan preview", "error", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"plan":    p,
		"preview": plan.Describe(p, agents),
	})
}
