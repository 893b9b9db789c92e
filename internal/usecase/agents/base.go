// Package agents holds the agent base type, the concrete agent kinds
// shipped with the coordinator, and the factory registry that maps an
// agent type name to its constructor.
package agents

import (
	"sync"

	"roundtable/internal/domain"
	"roundtable/internal/usecase/domainmatch"
)

// BaseAgent provides config access, status tracking and domain
// matching. Concrete agent kinds embed it and implement the remaining
// methods of domain.Agent.
type BaseAgent struct {
	cfg domain.AgentConfig

	mu     sync.RWMutex
	status domain.AgentStatus
}

// NewBase creates a BaseAgent in the idle state.
func NewBase(cfg domain.AgentConfig) *BaseAgent {
	return &BaseAgent{cfg: cfg, status: domain.AgentIdle}
}

// ID returns the agent identifier.
func (b *BaseAgent) ID() string { return b.cfg.ID }

// Config returns the agent's immutable configuration.
func (b *BaseAgent) Config() domain.AgentConfig { return b.cfg }

// Status returns the current lifecycle status.
func (b *BaseAgent) Status() domain.AgentStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// SetStatus updates the lifecycle status.
func (b *BaseAgent) SetStatus(status domain.AgentStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// CanWrite reports whether the agent's domain covers path for writing.
func (b *BaseAgent) CanWrite(path string) bool {
	return domainmatch.CanWrite(b.cfg.Domain, path)
}

// CanRead reports whether the agent's domain covers path for reading.
func (b *BaseAgent) CanRead(path string) bool {
	return domainmatch.CanRead(b.cfg.Domain, path)
}

// ContextFiles returns the read patterns used to assemble the agent's
// context: the configured read paths, or a single catch-all when the
// agent reads everything.
func (b *BaseAgent) ContextFiles() []string {
	if len(b.cfg.Domain.ReadPaths) > 0 {
		out := make([]string, len(b.cfg.Domain.ReadPaths))
		copy(out, b.cfg.Domain.ReadPaths)
		return out
	}
	return []string{"**"}
}
