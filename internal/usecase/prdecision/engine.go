// Package prdecision turns a pull request's CI status into a merge,
// review or wait decision, keeps the latest decision per PR number, and
// dispatches decisions to the source-control gateway.
package prdecision

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"roundtable/internal/domain"
)

// Recorder receives every recorded decision, typically for durable
// storage. Failures are logged, never propagated.
type Recorder interface {
	SaveDecision(ctx context.Context, d domain.PRDecision) error
}

// Config tunes the engine's external effects.
type Config struct {
	MergeMethod    domain.MergeMethod // default: squash
	BlockingLabels []string           // labels that exclude a PR from auto-merge
}

// Engine derives decisions from CI state and keeps the newest decision
// per PR number.
type Engine struct {
	gateway  domain.SourceControlGateway
	cfg      Config
	recorder Recorder
	logger   *slog.Logger

	mu        sync.RWMutex
	decisions map[int]domain.PRDecision
}

// New creates a decision engine. The recorder may be nil.
func New(gateway domain.SourceControlGateway, cfg Config, recorder Recorder, logger *slog.Logger) *Engine {
	if cfg.MergeMethod == "" {
		cfg.MergeMethod = domain.MergeSquash
	}
	return &Engine{
		gateway:   gateway,
		cfg:       cfg,
		recorder:  recorder,
		logger:    logger,
		decisions: make(map[int]domain.PRDecision),
	}
}

// DecideFor derives a decision from an already-fetched PR snapshot.
// The mapping is pure: CI success merges, CI failure or error requires
// review, anything else waits for CI to complete.
func DecideFor(pr domain.PRInfo) domain.PRDecision {
	d := domain.PRDecision{
		PRNumber:  pr.Number,
		Timestamp: time.Now().UTC(),
	}

	switch pr.CIStatus {
	case domain.CISuccess:
		d.Action = domain.ActionMerge
		d.Reason = "all CI checks passed"
	case domain.CIFailure, domain.CIError:
		d.Action = domain.ActionReview
		d.Reason = fmt.Sprintf("CI checks reported %s; manual review required", pr.CIStatus)
	default:
		d.Action = domain.ActionWait
		d.Reason = "CI checks still pending"
		d.WaitConditions = []string{"CI checks must complete"}
	}
	return d
}

// Decide fetches the PR through the gateway, derives its decision and
// records it. A missing PR fails with a wrapped ErrPRNotFound.
func (e *Engine) Decide(ctx context.Context, number int) (*domain.PRDecision, error) {
	pr, err := e.gateway.GetPR(ctx, number)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewDomainError("Engine.Decide", domain.ErrPRNotFound, fmt.Sprintf("PR #%d", number))
		}
		return nil, domain.WrapOp("Engine.Decide", err)
	}
	if pr == nil {
		return nil, domain.NewDomainError("Engine.Decide", domain.ErrPRNotFound, fmt.Sprintf("PR #%d", number))
	}

	d := DecideFor(*pr)
	e.Record(ctx, d)
	return &d, nil
}

// Record stores the decision for its PR number, overwriting any prior
// decision. No history is kept here; the recorder owns durability.
func (e *Engine) Record(ctx context.Context, d domain.PRDecision) {
	e.mu.Lock()
	e.decisions[d.PRNumber] = d
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.SaveDecision(ctx, d); err != nil {
			e.logger.Warn("decision recorder failed", "pr", d.PRNumber, "error", err)
		}
	}
}

// Decision returns the latest recorded decision for a PR number.
func (e *Engine) Decision(number int) (domain.PRDecision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.decisions[number]
	return d, ok
}

// ExecuteDecision dispatches a decision to the gateway. Merge and close
// have external effects; wait and review are recorded no-ops.
func (e *Engine) ExecuteDecision(ctx context.Context, d domain.PRDecision) (bool, error) {
	switch d.Action {
	case domain.ActionMerge:
		ok, err := e.gateway.MergePR(ctx, d.PRNumber, e.cfg.MergeMethod)
		if err != nil {
			return false, domain.WrapOp("Engine.ExecuteDecision", err)
		}
		e.logger.Info("pull request merged", "pr", d.PRNumber, "method", string(e.cfg.MergeMethod))
		return ok, nil
	case domain.ActionClose:
		ok, err := e.gateway.ClosePR(ctx, d.PRNumber, d.Reason)
		if err != nil {
			return false, domain.WrapOp("Engine.ExecuteDecision", err)
		}
		e.logger.Info("pull request closed", "pr", d.PRNumber, "reason", d.Reason)
		return ok, nil
	default:
		// wait and review carry no external effect.
		return true, nil
	}
}

// AutoMergeReady scans open PRs and merges every PR that has auto-merge
// enabled, carries no blocking label, and has all required checks
// passed. Each qualifying PR's merge decision is recorded, executed,
// and returned. Non-qualifying PRs are skipped silently.
func (e *Engine) AutoMergeReady(ctx context.Context, requiredChecks []string) ([]domain.PRDecision, error) {
	prs, err := e.gateway.ListOpenPRs(ctx)
	if err != nil {
		return nil, domain.WrapOp("Engine.AutoMergeReady", err)
	}

	var merged []domain.PRDecision
	for _, pr := range prs {
		if !pr.AutoMerge || e.blocked(pr) {
			continue
		}

		passed, err := e.gateway.AllChecksPassed(ctx, pr.Number, requiredChecks)
		if err != nil {
			e.logger.Warn("check lookup failed, skipping PR", "pr", pr.Number, "error", err)
			continue
		}
		if !passed {
			continue
		}

		d := domain.PRDecision{
			PRNumber:  pr.Number,
			Action:    domain.ActionMerge,
			Reason:    "auto-merge: all required checks passed",
			Timestamp: time.Now().UTC(),
		}
		e.Record(ctx, d)
		if _, err := e.ExecuteDecision(ctx, d); err != nil {
			e.logger.Warn("auto-merge failed", "pr", pr.Number, "error", err)
			continue
		}
		merged = append(merged, d)
	}
	return merged, nil
}

func (e *Engine) blocked(pr domain.PRInfo) bool {
	for _, label := range pr.Labels {
		if slices.Contains(e.cfg.BlockingLabels, label) {
			return true
		}
	}
	return false
}
