// Package directory serves the agent directory views on top of the orchestrator registry.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/orchestrator"
)

// FeaturedCount is the number of agents shown on the landing view.
const FeaturedCount = 4

const agentsKey = "agents"

// AgentSource is the registry the directory reads from.
type AgentSource interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

// Filter narrows a directory listing.
type Filter struct {
	// Query matches name or description, case-insensitively.
	Query string
	// Category must match exactly when set.
	Category string
}

// Service answers directory queries and keeps a short-lived copy of the agent
// list for views that only need names, such as the chat plan preview.
type Service struct {
	source AgentSource
	cache  *expirable.LRU[string, []domain.Agent]
	logger *slog.Logger
}

// NewService creates a directory service. size and ttl bound the query cache.
func NewService(source AgentSource, size int, ttl time.Duration, logger *slog.Logger) *Service {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source: source,
		cache:  expirable.NewLRU[string, []domain.Agent](size, nil, ttl),
		logger: logger,
	}
}

// List fetches the registry fresh and refreshes the cache.
func (s *Service) List(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.source.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(agentsKey, agents)
	return agents, nil
}

// Cached returns the cached agent list, fetching it on a miss.
func (s *Service) Cached(ctx context.Context) ([]domain.Agent, error) {
	if agents, ok := s.cache.Get(agentsKey); ok {
		return agents, nil
	}
	return s.List(ctx)
}

// Invalidate drops the cached list, e.g. after a registration.
func (s *Service) Invalidate() {
	s.cache.Purge()
}

// Search lists the registry and applies f.
func (s *Service) Search(ctx context.Context, f Filter) ([]domain.Agent, error) {
	agents, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Search(agents, f), nil
}

// Featured returns the first FeaturedCount agents.
func (s *Service) Featured(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) > FeaturedCount {
		agents = agents[:FeaturedCount]
	}
	return agents, nil
}

// Categories returns the distinct categories of the registry.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	agents, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Categories(agents), nil
}

// ByDeveloper returns the agents registered by principal.
func (s *Service) ByDeveloper(ctx context.Context, principal string) ([]domain.Agent, error) {
	agents, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]domain.Agent, 0)
	for _, a := range agents {
		if a.Developer == principal {
			mine = append(mine, a)
		}
	}
	return mine, nil
}

// Get returns the agent with the given id. Not-found and transport failures both
// report false; they are logged differently.
func (s *Service) Get(ctx context.Context, id string) (*domain.Agent, bool) {
	agent, err := s.source.GetAgent(ctx, id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAgentNotFound) {
			s.logger.Debug("agent not found", "agent_id", id)
		} else {
			s.logger.Warn("agent lookup failed", "agent_id", id, "error", err)
		}
		return nil, false
	}
	return agent, true
}

// Search filters agents by f, keeping registry order.
func Search(agents []domain.Agent, f Filter) []domain.Agent {
	query := strings.ToLower(f.Query)
	out := make([]domain.Agent, 0, len(agents))
	for _, a := range agents {
		matchesSearch := strings.Contains(strings.ToLower(a.Name), query) ||
			strings.Contains(strings.ToLower(a.Description), query)
		matchesCategory := f.Category == "" || a.Category == f.Category
		if matchesSearch && matchesCategory {
			out = append(out, a)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func Categories(agents []domain.Agent) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, a := range agents {
		if !seen[a.Category] {
			seen[a.Category] = true
			out = append(out, a.Category)
		}
	}
	return out
}
