// Package decisionstore keeps a durable log of PR decisions and run
// results in SQLite. The in-memory stores inside the engine and the
// coordinator stay authoritative; this adapter only records.
package decisionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"roundtable/internal/domain"
)

// Store is a SQLite-backed decision and run log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs the schema
// migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open decision db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate decision db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			pr_number       INTEGER PRIMARY KEY,
			action          TEXT NOT NULL,
			reason          TEXT NOT NULL,
			wait_conditions TEXT NOT NULL DEFAULT '[]',
			decided_at      TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			status        TEXT NOT NULL,
			started_at    TEXT NOT NULL,
			duration_ms   INTEGER NOT NULL,
			agent_results TEXT NOT NULL DEFAULT '[]',
			decisions     TEXT NOT NULL DEFAULT '[]',
			errors        TEXT NOT NULL DEFAULT '[]'
		)
	`)
	return err
}

// SaveDecision upserts the decision for its PR number, keeping only
// the newest one. It implements prdecision.Recorder.
func (s *Store) SaveDecision(ctx context.Context, d domain.PRDecision) error {
	conditions, err := json.Marshal(d.WaitConditions)
	if err != nil {
		return fmt.Errorf("marshal wait conditions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (pr_number, action, reason, wait_conditions, decided_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pr_number) DO UPDATE SET
			action = excluded.action,
			reason = excluded.reason,
			wait_conditions = excluded.wait_conditions,
			decided_at = excluded.decided_at`,
		d.PRNumber, string(d.Action), d.Reason, string(conditions), d.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save decision for PR #%d: %w", d.PRNumber, err)
	}
	return nil
}

// Decision returns the stored decision for a PR number.
func (s *Store) Decision(ctx context.Context, number int) (*domain.PRDecision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT action, reason, wait_conditions, decided_at FROM decisions WHERE pr_number = ?`, number)

	var (
		action, reason, conditions, decidedAt string
	)
	if err := row.Scan(&action, &reason, &conditions, &decidedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewDomainError("decisionstore.Decision", domain.ErrNotFound, fmt.Sprintf("PR #%d", number))
		}
		return nil, fmt.Errorf("load decision for PR #%d: %w", number, err)
	}

	d := domain.PRDecision{PRNumber: number, Action: domain.PRAction(action), Reason: reason}
	if err := json.Unmarshal([]byte(conditions), &d.WaitConditions); err != nil {
		return nil, fmt.Errorf("unmarshal wait conditions: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, decidedAt)
	if err != nil {
		return nil, fmt.Errorf("parse decision timestamp: %w", err)
	}
	d.Timestamp = ts
	return &d, nil
}

// SaveRun appends a run result to the log. It implements
// domain.RunSink.
func (s *Store) SaveRun(ctx context.Context, result domain.RunResult) error {
	agentResults, err := json.Marshal(result.AgentResults)
	if err != nil {
		return fmt.Errorf("marshal agent results: %w", err)
	}
	decisions, err := json.Marshal(result.Decisions)
	if err != nil {
		return fmt.Errorf("marshal decisions: %w", err)
	}
	errs, err := json.Marshal(result.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, started_at, duration_ms, agent_results, decisions, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ID, string(result.Status), result.Timestamp.UTC().Format(time.RFC3339Nano),
		result.Duration.Milliseconds(), string(agentResults), string(decisions), string(errs),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", result.ID, err)
	}
	return nil
}

// Runs returns the most recent run results, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]domain.RunResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, started_at, duration_ms, agent_results, decisions, errors
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunResult
	for rows.Next() {
		var (
			r                                 domain.RunResult
			status, startedAt                 string
			durationMS                        int64
			agentResults, decisions, errsJSON string
		)
		if err := rows.Scan(&r.ID, &status, &startedAt, &durationMS, &agentResults, &decisions, &errsJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = domain.RunStatus(status)
		ts, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp: %w", err)
		}
		r.Timestamp = ts
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(agentResults), &r.AgentResults); err != nil {
			return nil, fmt.Errorf("unmarshal agent results: %w", err)
		}
		if err := json.Unmarshal([]byte(decisions), &r.Decisions); err != nil {
			return nil, fmt.Errorf("unmarshal decisions: %w", err)
		}
		if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
