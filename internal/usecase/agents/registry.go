package agents

import (
	"log/slog"
	"sync"

	"roundtable/internal/domain"
)

// Factory constructs an agent of a particular kind from its config.
type Factory func(cfg domain.AgentConfig) (domain.Agent, error)

// Registry maps agent type names to factories and holds the live agent
// instances by id. It is an explicit object handed to the coordinator,
// never package-level state.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	agents    map[string]domain.Agent
	order     []string // agent ids in registration order
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		agents:    make(map[string]domain.Agent),
		logger:    logger,
	}
}

// RegisterType stores (or overwrites) the factory for a type name.
func (r *Registry) RegisterType(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Create builds an agent via the factory registered for typeName and
// stores it keyed by its config id, overwriting any prior agent with
// the same id.
func (r *Registry) Create(typeName string, cfg domain.AgentConfig) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[typeName]
	if !ok {
		return nil, domain.NewDomainError("Registry.Create", domain.ErrUnknownAgentType, typeName)
	}

	agent, err := factory(cfg)
	if err != nil {
		return nil, domain.WrapOp("Registry.Create", err)
	}

	if _, exists := r.agents[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.agents[cfg.ID] = agent
	r.logger.Info("agent created", "agent_id", cfg.ID, "type", typeName)
	return agent, nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrNotFound, id)
	}
	return agent, nil
}

// All returns every live agent in registration order.
func (r *Registry) All() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// Remove deletes an agent instance. It reports whether an entry
// existed and was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return false
	}
	delete(r.agents, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("agent removed", "agent_id", id)
	return true
}
