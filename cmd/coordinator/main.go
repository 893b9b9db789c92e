package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"roundtable/internal/adapter/decisionstore"
	"roundtable/internal/adapter/msgstore"
	"roundtable/internal/adapter/scm"
	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
	"roundtable/internal/infra/logger"
	"roundtable/internal/infra/tracer"
	"roundtable/internal/usecase/agents"
	"roundtable/internal/usecase/bus"
	"roundtable/internal/usecase/coordinator"
	"roundtable/internal/usecase/prdecision"
	"roundtable/internal/usecase/scheduling"
)

func main() {
	var (
		cfgPath = flag.String("config", "config.yaml", "path to the configuration file")
		once    = flag.Bool("once", false, "run a single coordination cycle and exit")
		dryRun  = flag.Bool("dry-run", false, "compute and record decisions without merging")
		skipPRs = flag.Bool("skip-prs", false, "skip the pull request decision phase")
		agentsF = flag.String("agents", "", "comma-separated agent ids to run (default: all)")
	)
	flag.Usage = showUsage
	flag.Parse()

	if err := run(*cfgPath, runFlags{
		Once:     *once,
		DryRun:   *dryRun,
		SkipPRs:  *skipPRs,
		AgentIDs: splitIDs(*agentsF),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type runFlags struct {
	Once     bool
	DryRun   bool
	SkipPRs  bool
	AgentIDs []string
}

func showUsage() {
	fmt.Fprintln(os.Stderr, `roundtable - multi-agent repository coordinator

USAGE:
    roundtable [FLAGS]

FLAGS:
    -config PATH    Configuration file (default: ./config.yaml)
    -once           Run one coordination cycle and exit
    -dry-run        Record PR decisions without executing merges
    -skip-prs       Skip pull request processing
    -agents IDS     Comma-separated agent ids to run (default: all)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: ROUNDTABLE_GITHUB_TOKEN overrides github.token

Without -once the coordinator serves the configured cron schedules
until interrupted.`)
}

func run(cfgPath string, flags runFlags) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Source control gateway
	var gateway domain.SourceControlGateway
	if cfg.Github.Token != "" {
		gateway = scm.NewGithub(scm.GithubConfig{
			Owner:             cfg.Owner,
			Repo:              cfg.Repo,
			Token:             cfg.Github.Token,
			BaseURL:           cfg.Github.BaseURL,
			RequestsPerSecond: cfg.Github.RequestsPerSecond,
		}, log)
	} else {
		log.Warn("no github token configured, using in-memory gateway")
		gateway = scm.NewFake()
	}

	// 4. Persistence
	msgs, err := msgstore.NewFileStore(cfg.MessagingPath)
	if err != nil {
		return fmt.Errorf("message store: %w", err)
	}
	if err := os.MkdirAll(cfg.DecisionsPath, 0o755); err != nil {
		return fmt.Errorf("decision store: %w", err)
	}
	decisions, err := decisionstore.Open(filepath.Join(cfg.DecisionsPath, "decisions.db"))
	if err != nil {
		return fmt.Errorf("decision store: %w", err)
	}
	defer decisions.Close()

	// 5. Message bus
	b := bus.New(log, bus.WithSink(msgs))
	defer b.Close()

	// 6. Agents
	registry := agents.NewRegistry(log)
	registry.RegisterType("scripted", func(ac domain.AgentConfig) (domain.Agent, error) {
		return agents.NewScripted(ac, agents.Hooks{}, log), nil
	})
	for _, entry := range cfg.Agents {
		typeName := entry.Type
		if typeName == "" {
			typeName = "scripted"
		}
		if _, err := registry.Create(typeName, entry.AgentConfig); err != nil {
			return fmt.Errorf("agent %q: %w", entry.ID, err)
		}
	}

	// 7. Decision engine & coordinator
	engine := prdecision.New(gateway, prdecision.Config{
		MergeMethod:    domain.MergeMethod(cfg.AutoMerge.MergeMethod),
		BlockingLabels: cfg.AutoMerge.BlockingLabels,
	}, decisions, log)

	coord := coordinator.New(registry, b, engine, gateway, coordinator.Config{
		AutoMergeEnabled: cfg.AutoMerge.IsEnabled(),
		RequiredChecks:   cfg.AutoMerge.RequiredChecks,
	}, log, coordinator.WithRunSink(decisions))

	if err := coord.Initialize(ctx); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	// 8. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := coordinator.RunOptions{
		AgentIDs:         flags.AgentIDs,
		SkipPRProcessing: flags.SkipPRs,
		DryRun:           flags.DryRun,
	}

	if flags.Once {
		result, err := coord.Run(ctx, opts)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		log.Info("run finished",
			"run_id", result.ID,
			"status", string(result.Status),
			"agents", len(result.AgentResults),
			"decisions", len(result.Decisions),
			"errors", len(result.Errors))
		return coord.Stop(context.Background())
	}

	// 9. Cron schedules
	sched := scheduling.New(coord, log, scheduling.WithRunOptions(opts))
	if cfg.Schedule != "" {
		if err := sched.AddGlobal(cfg.Schedule); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	for _, entry := range cfg.Agents {
		if entry.Schedule == "" {
			continue
		}
		if err := sched.AddAgent(entry.ID, entry.Schedule); err != nil {
			return fmt.Errorf("agent %q schedule: %w", entry.ID, err)
		}
	}
	if sched.Entries() == 0 {
		return fmt.Errorf("no schedules configured; use -once for a single run")
	}

	sched.Start()
	log.Info("coordinator serving", "schedules", sched.Entries())

	<-ctx.Done()
	log.Info("shutting down")
	sched.Stop()
	return coord.Stop(context.Background())
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
