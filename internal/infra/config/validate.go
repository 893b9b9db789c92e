package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"roundtable/internal/domain"
)

// Validate checks the configuration for load-time errors: missing
// required fields, duplicate agent ids, agents without write paths,
// the same literal write pattern owned by more than one agent, and
// malformed cron or duration expressions. The coordinator core itself
// tolerates an invalid configuration; validation exists to reject it
// before the system starts.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return invalid("owner is required")
	}
	if c.Repo == "" {
		return invalid("repo is required")
	}

	switch c.Logger.Format {
	case "", "json", "text":
	default:
		return invalid(fmt.Sprintf("logger format %q is not json or text", c.Logger.Format))
	}

	switch c.AutoMerge.MergeMethod {
	case "", "merge", "squash", "rebase":
	default:
		return invalid(fmt.Sprintf("merge method %q is not merge, squash or rebase", c.AutoMerge.MergeMethod))
	}
	if c.AutoMerge.MergeDelay != "" {
		if _, err := time.ParseDuration(c.AutoMerge.MergeDelay); err != nil {
			return invalid(fmt.Sprintf("merge delay %q: %v", c.AutoMerge.MergeDelay, err))
		}
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return invalid(fmt.Sprintf("schedule %q: %v", c.Schedule, err))
		}
	}

	seenIDs := make(map[string]bool)
	patternOwner := make(map[string]string) // literal write pattern → agent id
	for i, agent := range c.Agents {
		if agent.ID == "" {
			return invalid(fmt.Sprintf("agents[%d]: id is required", i))
		}
		if seenIDs[agent.ID] {
			return invalid(fmt.Sprintf("duplicate agent id %q", agent.ID))
		}
		seenIDs[agent.ID] = true

		if agent.ID == domain.SenderCoordinator || agent.ID == domain.BroadcastTarget {
			return invalid(fmt.Sprintf("agent id %q is reserved", agent.ID))
		}

		if len(agent.Domain.WritePaths) == 0 {
			return invalid(fmt.Sprintf("agent %q: at least one write path is required", agent.ID))
		}
		for _, pat := range agent.Domain.WritePaths {
			if owner, taken := patternOwner[pat]; taken {
				return invalid(fmt.Sprintf("write pattern %q owned by both %q and %q", pat, owner, agent.ID))
			}
			patternOwner[pat] = agent.ID
		}

		if agent.Schedule != "" {
			if _, err := cron.ParseStandard(agent.Schedule); err != nil {
				return invalid(fmt.Sprintf("agent %q schedule: %v", agent.ID, err))
			}
		}
	}

	return nil
}

func invalid(detail string) error {
	return domain.NewDomainError("Config.Validate", domain.ErrInvalidInput, detail)
}
