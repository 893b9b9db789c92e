package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"roundtable/internal/domain"
)

// Hooks are the integrator-supplied behaviors of a ScriptedAgent. Any
// nil hook falls back to a default: the default prompt renders the
// configured template, the default run reports success with the prompt
// as output, and the default message handler only logs.
type Hooks struct {
	Prompt    func(actx domain.AgentContext) (string, error)
	Run       func(ctx context.Context, actx domain.AgentContext) (*domain.AgentRunResult, error)
	OnMessage func(ctx context.Context, msg domain.AgentMessage) error
}

// ScriptedAgent is the built-in agent kind: its persona and domain come
// from configuration and its behavior from integrator hooks. It carries
// no model client of its own; talking to an external executor is the
// integrator's concern.
type ScriptedAgent struct {
	*BaseAgent
	hooks  Hooks
	logger *slog.Logger
}

// NewScripted creates a ScriptedAgent from config and hooks.
func NewScripted(cfg domain.AgentConfig, hooks Hooks, logger *slog.Logger) *ScriptedAgent {
	return &ScriptedAgent{
		BaseAgent: NewBase(cfg),
		hooks:     hooks,
		logger:    logger.With("agent_id", cfg.ID),
	}
}

const defaultPromptTemplate = `You are {{.Persona.Name}}, {{.Persona.Role}}.
You own the following paths: {{join .Domain.WritePaths ", "}}.
{{if .Messages}}You have {{len .Messages}} pending message(s).{{end}}
Review your domain and produce the required changes.`

// GeneratePrompt renders the configured prompt template (or the default
// one) against the agent config and run context.
func (a *ScriptedAgent) GeneratePrompt(actx domain.AgentContext) (string, error) {
	if a.hooks.Prompt != nil {
		return a.hooks.Prompt(actx)
	}

	text := a.Config().PromptTemplate
	if text == "" {
		text = defaultPromptTemplate
	}

	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("agent %s: parse prompt template: %w", a.ID(), err)
	}

	data := struct {
		domain.AgentConfig
		Messages    []domain.AgentMessage
		Files       []string
		PreviousRun *domain.AgentRunResult
	}{a.Config(), actx.Messages, actx.Files, actx.PreviousRun}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("agent %s: render prompt: %w", a.ID(), err)
	}
	return sb.String(), nil
}

// Execute runs the agent's unit of work.
func (a *ScriptedAgent) Execute(ctx context.Context, actx domain.AgentContext) (*domain.AgentRunResult, error) {
	a.SetStatus(domain.AgentRunning)
	start := time.Now()

	result, err := a.run(ctx, actx)
	if err != nil {
		a.SetStatus(domain.AgentError)
		return nil, err
	}

	if result.AgentID == "" {
		result.AgentID = a.ID()
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = start.UTC()
	}
	result.Duration = time.Since(start)

	a.SetStatus(domain.AgentCompleted)
	a.logger.Info("agent run finished",
		"status", string(result.Status),
		"changed_files", len(result.ChangedFiles),
	)
	return result, nil
}

func (a *ScriptedAgent) run(ctx context.Context, actx domain.AgentContext) (*domain.AgentRunResult, error) {
	if a.hooks.Run != nil {
		return a.hooks.Run(ctx, actx)
	}

	prompt, err := a.GeneratePrompt(actx)
	if err != nil {
		return nil, err
	}
	return &domain.AgentRunResult{
		AgentID:   a.ID(),
		Status:    domain.RunSuccess,
		Timestamp: time.Now().UTC(),
		Output:    prompt,
	}, nil
}

// HandleMessage reacts to an inbound bus message.
func (a *ScriptedAgent) HandleMessage(ctx context.Context, msg domain.AgentMessage) error {
	if a.hooks.OnMessage != nil {
		return a.hooks.OnMessage(ctx, msg)
	}
	a.logger.Debug("message received",
		"from", msg.From,
		"type", string(msg.Type),
	)
	return nil
}
