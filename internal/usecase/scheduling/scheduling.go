// Package scheduling triggers coordinator runs from cron expressions:
// one entry per agent carrying its own schedule, plus an optional
// global entry covering every agent.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"roundtable/internal/usecase/coordinator"
)

// runTimeout bounds a single scheduled run.
const runTimeout = 30 * time.Minute

// Scheduler fires coordinator runs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	coord  *coordinator.Coordinator
	logger *slog.Logger

	base coordinator.RunOptions

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithRunOptions sets base run options applied to every scheduled run.
// Per-agent entries still override the agent id selection.
func WithRunOptions(base coordinator.RunOptions) Option {
	return func(s *Scheduler) { s.base = base }
}

// New creates a scheduler for the coordinator.
func New(coord *coordinator.Coordinator, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:   cron.New(),
		coord:  coord,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddGlobal schedules a run over all registered agents.
func (s *Scheduler) AddGlobal(schedule string) error {
	return s.add("global", schedule, nil)
}

// AddAgent schedules a run restricted to a single agent id.
func (s *Scheduler) AddAgent(agentID, schedule string) error {
	return s.add(agentID, schedule, []string{agentID})
}

func (s *Scheduler) add(name, schedule string, agentIDs []string) error {
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %q: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Schedule(spec, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		opts := s.base
		if agentIDs != nil {
			opts.AgentIDs = agentIDs
		}

		start := time.Now()
		result, err := s.coord.Run(runCtx, opts)
		if err != nil {
			s.logger.Error("scheduled run failed", "entry", name, "error", err)
			return
		}
		s.logger.Info("scheduled run finished",
			"entry", name,
			"status", string(result.Status),
			"took", time.Since(start),
		)
	}))
	return nil
}

// Start begins firing schedules. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the schedules and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Entries returns the number of registered schedules.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cron.Entries())
}

// RunOptions returns the base options applied to scheduled runs.
func (s *Scheduler) RunOptions() coordinator.RunOptions {
	return s.base
}
