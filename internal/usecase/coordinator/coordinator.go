// Package coordinator drives a run: executing the selected agents in
// registration order, broadcasting their completion signals, and
// processing open pull requests through the decision engine.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"roundtable/internal/domain"
	"roundtable/internal/infra/tracer"
	"roundtable/internal/usecase/agents"
	"roundtable/internal/usecase/bus"
	"roundtable/internal/usecase/prdecision"
)

// Config tunes the coordinator's PR processing.
type Config struct {
	AutoMergeEnabled bool
	RequiredChecks   []string
}

// RunOptions select what a single run covers.
type RunOptions struct {
	// AgentIDs restricts the run to a subset of agents. Empty means
	// all registered agents. Unknown ids are dropped silently.
	AgentIDs []string
	// SkipPRProcessing disables the PR decision phase.
	SkipPRProcessing bool
	// DryRun computes and records decisions but suppresses merge and
	// close calls to the gateway.
	DryRun bool
}

// AgentSummary is one agent's line in the status summary.
type AgentSummary struct {
	ID     string             `json:"id"`
	Status domain.AgentStatus `json:"status"`
}

// StatusSummary is a read-only snapshot of the coordinator.
type StatusSummary struct {
	State      domain.CoordinatorState `json:"state"`
	AgentCount int                     `json:"agent_count"`
	Agents     []AgentSummary          `json:"agents"`
	LastRunAt  *time.Time              `json:"last_run_at,omitempty"`
	TotalRuns  int                     `json:"total_runs"`
}

// Coordinator orchestrates agents, the bus and the decision engine.
type Coordinator struct {
	registry *agents.Registry
	bus      *bus.Bus
	engine   *prdecision.Engine
	gateway  domain.SourceControlGateway
	cfg      Config
	runSink  domain.RunSink
	logger   *slog.Logger

	// mu serializes runs and guards state, history and the inboxes, so
	// no agent's Execute is ever invoked twice concurrently.
	mu      sync.Mutex
	state   domain.CoordinatorState
	history []domain.RunResult
	unsubs  []func()

	inboxMu sync.Mutex
	inboxes map[string][]domain.AgentMessage
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRunSink attaches durable storage for completed run results.
// Sink failures are logged, never propagated.
func WithRunSink(sink domain.RunSink) Option {
	return func(c *Coordinator) { c.runSink = sink }
}

// New creates a Coordinator in the idle state.
func New(registry *agents.Registry, b *bus.Bus, engine *prdecision.Engine, gateway domain.SourceControlGateway, cfg Config, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		bus:      b,
		engine:   engine,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger,
		state:    domain.StateIdle,
		inboxes:  make(map[string][]domain.AgentMessage),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize subscribes a forwarding handler for every registered
// agent and announces itself with a status broadcast. Each forwarded
// message is also queued on the agent's inbox so the next run can hand
// it over as context.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.StateStopped {
		return domain.WrapOp("Coordinator.Initialize", domain.ErrStopped)
	}

	for _, agent := range c.registry.All() {
		agent := agent
		unsub := c.bus.Subscribe(agent.ID(), func(ctx context.Context, msg domain.AgentMessage) error {
			c.enqueue(agent.ID(), msg)
			return agent.HandleMessage(ctx, msg)
		})
		c.unsubs = append(c.unsubs, unsub)
	}

	if err := c.bus.Broadcast(ctx, domain.SenderCoordinator, domain.MessageStatus, map[string]any{
		"event": "coordinator_initialized",
	}); err != nil {
		return domain.WrapOp("Coordinator.Initialize", err)
	}

	c.state = domain.StateRunning
	c.logger.Info("coordinator initialized", "agents", len(c.registry.All()))
	return nil
}

func (c *Coordinator) enqueue(agentID string, msg domain.AgentMessage) {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	c.inboxes[agentID] = append(c.inboxes[agentID], msg)
}

func (c *Coordinator) drainInbox(agentID string) []domain.AgentMessage {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	msgs := c.inboxes[agentID]
	delete(c.inboxes, agentID)
	return msgs
}

// Run executes one coordinator cycle and appends its result to the run
// history. Agent failures are collected and the run continues; a
// failure of the coordinator's own broadcast aborts the run.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (*domain.RunResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.StateStopped {
		return nil, domain.WrapOp("Coordinator.Run", domain.ErrStopped)
	}

	ctx, span := tracer.StartSpan(ctx, "coordinator.run")
	defer span.End()

	c.state = domain.StateProcessing
	start := time.Now()
	result := &domain.RunResult{
		ID:        newRunID(start),
		Timestamp: start.UTC(),
	}

	var abort error
	func() {
		defer func() {
			if r := recover(); r != nil {
				abort = fmt.Errorf("run panicked: %v", r)
				result.Errors = append(result.Errors, abort.Error())
			}
		}()
		abort = c.runAgents(ctx, opts, result)
		if abort == nil && !opts.SkipPRProcessing {
			c.processPRs(ctx, opts, result)
		}
	}()

	result.Duration = time.Since(start)
	result.Status = overallStatus(result, abort)

	if abort != nil {
		c.state = domain.StateError
		tracer.RecordError(span, abort)
	} else {
		c.state = domain.StateIdle
	}

	c.history = append(c.history, *result)
	if c.runSink != nil {
		if err := c.runSink.SaveRun(ctx, *result); err != nil {
			c.logger.Warn("run sink failed", "run_id", result.ID, "error", err)
		}
	}

	c.logger.Info("run finished",
		"run_id", result.ID,
		"status", string(result.Status),
		"agents", len(result.AgentResults),
		"decisions", len(result.Decisions),
		"errors", len(result.Errors),
	)
	return result, abort
}

// runAgents executes the selected agents strictly one after another in
// registration order. The returned error is a coordinator-level abort
// (broadcast failure); per-agent failures land in result.Errors.
func (c *Coordinator) runAgents(ctx context.Context, opts RunOptions, result *domain.RunResult) error {
	for _, agent := range c.selectAgents(opts.AgentIDs) {
		agentCtx, span := tracer.StartSpan(ctx, "agent.execute",
			trace.WithAttributes(tracer.StringAttr("agent_id", agent.ID())))

		actx := c.buildContext(agent)
		res, err := c.executeAgent(agentCtx, agent, actx)
		if err != nil {
			span.End()
			result.Errors = append(result.Errors, fmt.Sprintf("Agent %s: %v", agent.ID(), err))
			c.logger.Warn("agent failed", "agent_id", agent.ID(), "error", err)
			continue
		}
		span.End()

		result.AgentResults = append(result.AgentResults, *res)

		if err := c.bus.Broadcast(ctx, agent.ID(), domain.MessageSignal, map[string]any{
			"event":         "task_completed",
			"agent_id":      agent.ID(),
			"status":        string(res.Status),
			"changed_files": res.ChangedFiles,
		}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("broadcast after %s: %v", agent.ID(), err))
			return err
		}
	}
	return nil
}

// executeAgent isolates agent panics so one agent cannot take the run
// down with it.
func (c *Coordinator) executeAgent(ctx context.Context, agent domain.Agent, actx domain.AgentContext) (res *domain.AgentRunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return agent.Execute(ctx, actx)
}

// selectAgents resolves the agent set for a run, dropping unknown ids.
func (c *Coordinator) selectAgents(ids []string) []domain.Agent {
	all := c.registry.All()
	if len(ids) == 0 {
		return all
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []domain.Agent
	for _, agent := range all {
		if wanted[agent.ID()] {
			out = append(out, agent)
		}
	}
	return out
}

// buildContext assembles an agent's input: its queued messages, the
// most recent prior result for the same agent id, and the current
// timestamp. The file listing and contents are placeholders for an
// external collaborator.
func (c *Coordinator) buildContext(agent domain.Agent) domain.AgentContext {
	return domain.AgentContext{
		Messages:    c.drainInbox(agent.ID()),
		Timestamp:   time.Now().UTC(),
		PreviousRun: c.previousResult(agent.ID()),
	}
}

// previousResult scans the run history backward for the agent's most
// recent result. Callers hold c.mu.
func (c *Coordinator) previousResult(agentID string) *domain.AgentRunResult {
	for i := len(c.history) - 1; i >= 0; i-- {
		for j := len(c.history[i].AgentResults) - 1; j >= 0; j-- {
			if c.history[i].AgentResults[j].AgentID == agentID {
				res := c.history[i].AgentResults[j]
				return &res
			}
		}
	}
	return nil
}

// processPRs decides every open PR, executes merge decisions unless in
// dry-run mode, and then sweeps auto-merge candidates. Gateway errors
// are collected as run errors rather than aborting.
func (c *Coordinator) processPRs(ctx context.Context, opts RunOptions, result *domain.RunResult) {
	prs, err := c.gateway.ListOpenPRs(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list open PRs: %v", err))
		return
	}

	for _, pr := range prs {
		d := prdecision.DecideFor(pr)
		c.engine.Record(ctx, d)

		if d.Action == domain.ActionMerge && !opts.DryRun {
			if _, err := c.engine.ExecuteDecision(ctx, d); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("merge PR #%d: %v", d.PRNumber, err))
			}
		}
		result.Decisions = append(result.Decisions, d)
	}

	// The auto-merge sweep executes merges as it goes, so it is
	// suppressed entirely in dry-run mode.
	if c.cfg.AutoMergeEnabled && !opts.DryRun {
		merged, err := c.engine.AutoMergeReady(ctx, c.cfg.RequiredChecks)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("auto-merge sweep: %v", err))
			return
		}
		result.Decisions = append(result.Decisions, merged...)
	}
}

func newRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func overallStatus(result *domain.RunResult, abort error) domain.RunStatus {
	if abort != nil {
		return domain.RunFailure
	}
	if len(result.Errors) == 0 {
		return domain.RunSuccess
	}
	if len(result.AgentResults) > 0 {
		return domain.RunPartial
	}
	return domain.RunFailure
}

// Stop transitions to the terminal stopped state, announces the stop
// and removes the forwarding subscriptions.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.StateStopped {
		return nil
	}
	c.state = domain.StateStopped

	err := c.bus.Broadcast(ctx, domain.SenderCoordinator, domain.MessageStatus, map[string]any{
		"event": "coordinator_stopped",
	})

	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil

	c.logger.Info("coordinator stopped")
	return err
}

// State returns the current coordinator state.
func (c *Coordinator) State() domain.CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a defensive copy of the run history, oldest first.
func (c *Coordinator) History() []domain.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RunResult, len(c.history))
	copy(out, c.history)
	return out
}

// LastRun returns the most recent run result, or nil for a fresh
// coordinator.
func (c *Coordinator) LastRun() *domain.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return nil
	}
	last := c.history[len(c.history)-1]
	return &last
}

// Summary returns a snapshot of the coordinator and its agents.
func (c *Coordinator) Summary() StatusSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.registry.All()
	summary := StatusSummary{
		State:      c.state,
		AgentCount: len(all),
		TotalRuns:  len(c.history),
	}
	for _, agent := range all {
		summary.Agents = append(summary.Agents, AgentSummary{ID: agent.ID(), Status: agent.Status()})
	}
	if len(c.history) > 0 {
		t := c.history[len(c.history)-1].Timestamp
		summary.LastRunAt = &t
	}
	return summary
}
