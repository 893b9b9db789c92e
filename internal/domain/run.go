package domain

import (
	"context"
	"time"
)

// RunStatus is the overall outcome of an agent execution or a
// coordinator run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailure RunStatus = "failure"
)

// CoordinatorState is the coordinator's lifecycle state.
type CoordinatorState string

const (
	StateIdle       CoordinatorState = "idle"
	StateRunning    CoordinatorState = "running"
	StateProcessing CoordinatorState = "processing"
	StateError      CoordinatorState = "error"
	StateStopped    CoordinatorState = "stopped"
)

// RunResult aggregates one coordinator cycle: the per-agent results,
// the PR decisions made, and any errors collected along the way.
type RunResult struct {
	ID           string           `json:"id"`
	AgentResults []AgentRunResult `json:"agent_results"`
	Decisions    []PRDecision     `json:"decisions,omitempty"`
	Status       RunStatus        `json:"status"`
	Timestamp    time.Time        `json:"timestamp"`
	Duration     time.Duration    `json:"duration"`
	Errors       []string         `json:"errors,omitempty"`
}

// RunSink receives completed run results, typically for durable storage.
type RunSink interface {
	SaveRun(ctx context.Context, result RunResult) error
}
