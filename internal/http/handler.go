package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nexushub/portal/internal/config"
	"github.com/nexushub/portal/internal/directory"
	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/hub"
	"github.com/nexushub/portal/internal/orchestrator"
	"github.com/nexushub/portal/internal/session"
)

// Orchestrator is the part of the orchestrator API the HTTP handlers call directly.
type Orchestrator interface {
	Health(ctx context.Context) error
	Plan(ctx context.Context, req *orchestrator.PlanRequest) (*domain.Plan, error)
	RegisterAgent(ctx context.Context, req *domain.RegisterAgentRequest) (*domain.RegisterAgentResponse, error)
}

// Handler handles HTTP requests.
type Handler struct {
	cfg       *config.Config
	orch      Orchestrator
	directory *directory.Service
	sessions  *session.Manager
	hub       *hub.Hub
	logger    *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, orch Orchestrator, dir *directory.Service, sessions *session.Manager, h *hub.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		orch:      orch,
		directory: dir,
		sessions:  sessions,
		hub:       h,
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	// Agent directory
	e.GET("/api/agents", h.ListAgents)
	e.GET("/api/agents/featured", h.FeaturedAgents)
	e.GET("/api/agents/categories", h.Categories)
	e.GET("/api/agents/:id", h.GetAgent)
	e.POST("/api/agents", h.RegisterAgent)
	e.GET("/api/dashboard", h.Dashboard)

	// Planning for a fixed manifest
	e.POST("/api/plan", h.Plan)

	// Session
	e.GET("/api/session", h.GetSession)
	e.POST("/api/session", h.Login)
	e.DELETE("/api/session", h.Logout)
	e.GET("/api/session/login", h.LoginRedirect)
	e.GET("/api/session/callback", h.LoginCallback)
}

// Health reports the portal's own state and whether the orchestrator answers.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	status, code := "healthy", http.StatusOK
	orchStatus := "ok"
	if err := h.orch.Health(c.Request().Context()); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		orchStatus = orchestrator.ErrorMessage(err)
	}
	return c.JSON(code, map[string]interface{}{
		"status":        status,
		"orchestrator":  orchStatus,
		"connections":   h.hub.ConnectionCount(),
		"chat_sessions": h.hub.SessionCount(),
		"sessions":      h.sessions.Count(),
	})
}

// errorJSON answers with the orchestrator's message and a status that mirrors
// client errors and maps everything else to 502.
func errorJSON(c echo.Context, err error) error {
	code := http.StatusBadGateway
	if apiErr, ok := asAPIError(err); ok && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		code = apiErr.StatusCode
	}
	return c.JSON(code, map[string]string{"error": orchestrator.ErrorMessage(err)})
}
