package http

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nexushub/portal/internal/directory"
	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/orchestrator"
)

// DefaultAgentVersion is the version recorded for agents registered from the portal.
const DefaultAgentVersion = "0.1.0"

var endpointPattern = regexp.MustCompile(`^https?://.+`)

// RegisterAgentForm is the registration form submitted by a developer.
type RegisterAgentForm struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
	Category    string `json:"category"`
}

// Validate checks required fields and the endpoint scheme.
func (f *RegisterAgentForm) Validate() error {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Endpoint = strings.TrimSpace(f.Endpoint)
	f.Category = strings.TrimSpace(f.Category)

	switch {
	case f.ID == "":
		return errors.New("id is required")
	case f.Name == "":
		return errors.New("name is required")
	case f.Description == "":
		return errors.New("description is required")
	case f.Endpoint == "":
		return errors.New("endpoint is required")
	case !endpointPattern.MatchString(f.Endpoint):
		return errors.New("endpoint must be an http or https URL")
	case f.Category == "":
		return errors.New("category is required")
	}
	return nil
}

// Request builds the orchestrator registration on behalf of developer.
func (f *RegisterAgentForm) Request(developer string) *domain.RegisterAgentRequest {
	return &domain.RegisterAgentRequest{
		ID:           f.ID,
		Name:         f.Name,
		Description:  f.Description,
		Endpoint:     f.Endpoint,
		Category:     f.Category,
		Developer:    developer,
		AllowedTools: []string{},
		Version:      DefaultAgentVersion,
	}
}

// ListAgents searches the directory.
// GET /api/agents?q=&category=
func (h *Handler) ListAgents(c echo.Context) error {
	agents, err := h.directory.Search(c.Request().Context(), directory.Filter{
		Query:    c.QueryParam("q"),
		Category: c.QueryParam("category"),
	})
	if err != nil {
		h.logger.Warn("failed to list agents", "error", err)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, agents)
}

// FeaturedAgents returns the landing view selection.
// GET /api/agents/featured
func (h *Handler) FeaturedAgents(c echo.Context) error {
	agents, err := h.directory.Featured(c.Request().Context())
	if err != nil {
		h.logger.Warn("failed to list featured agents", "error", err)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, agents)
}

// Categories lists the distinct categories.
// GET /api/agents/categories
func (h *Handler) Categories(c echo.Context) error {
	categories, err := h.directory.Categories(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, categories)
}

// GetAgent gets a specific agent by ID.
// GET /api/agents/:id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, ok := h.directory.Get(c.Request().Context(), c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found"})
	}
	return c.JSON(http.StatusOK, agent)
}

// Dashboard lists the agents registered by the logged-in developer.
// GET /api/dashboard
func (h *Handler) Dashboard(c echo.Context) error {
	s, ok := h.currentSession(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login required"})
	}

	agents, err := h.directory.ByDeveloper(c.Request().Context(), s.Principal)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"principal": s.Principal,
		"agents":    agents,
	})
}

// RegisterAgent forwards a validated registration to the orchestrator.
// POST /api/agents
func (h *Handler) RegisterAgent(c echo.Context) error {
	var form RegisterAgentForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := form.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	req := form.Request(h.principal(c))

	if _, err := h.orch.RegisterAgent(c.Request().Context(), req); err != nil {
		h.logger.Warn("agent registration failed", "agent_id", req.ID, "error", err)
		return errorJSON(c, err)
	}
	h.directory.Invalidate()
	h.logger.Info("agent registered", "agent_id", req.ID, "developer", req.Developer)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":       true,
		"agent_id": req.ID,
	})
}

func asAPIError(err error) (*orchestrator.APIError, bool) {
	var apiErr *orchestrator.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
