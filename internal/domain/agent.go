package domain

import (
	"context"
	"time"
)

// AgentStatus is the lifecycle state of a running agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentRunning   AgentStatus = "running"
	AgentWaiting   AgentStatus = "waiting"
	AgentError     AgentStatus = "error"
	AgentCompleted AgentStatus = "completed"
)

// AgentDomain is the set of file-path glob patterns an agent owns.
// WritePaths must be non-empty. An empty ReadPaths means the agent
// may read everything.
type AgentDomain struct {
	WritePaths []string `json:"write_paths"          yaml:"write_paths"`
	ReadPaths  []string `json:"read_paths,omitempty" yaml:"read_paths,omitempty"`
}

// Persona describes how an agent presents itself. The coordinator treats
// it as opaque display metadata.
type Persona struct {
	Name   string   `json:"name"             yaml:"name"`
	Role   string   `json:"role"             yaml:"role"`
	Traits []string `json:"traits,omitempty" yaml:"traits,omitempty"`
	Voice  string   `json:"voice,omitempty"  yaml:"voice,omitempty"`
}

// AgentConfig is the immutable configuration an agent is constructed from.
type AgentConfig struct {
	ID             string            `json:"id"                        yaml:"id"`
	Persona        Persona           `json:"persona"                   yaml:"persona"`
	Domain         AgentDomain       `json:"domain"                    yaml:"domain"`
	Schedule       string            `json:"schedule,omitempty"        yaml:"schedule,omitempty"`
	Model          string            `json:"model,omitempty"           yaml:"model,omitempty"`
	PromptTemplate string            `json:"prompt_template,omitempty" yaml:"prompt_template,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"        yaml:"metadata,omitempty"`
}

// AgentRunResult is the outcome of one agent execution.
type AgentRunResult struct {
	AgentID      string        `json:"agent_id"`
	Status       RunStatus     `json:"status"`
	ChangedFiles []string      `json:"changed_files,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration"`
	Output       string        `json:"output,omitempty"`
}

// AgentContext is the input handed to an agent for one execution. The
// file listing and contents are populated by an external collaborator;
// the coordinator fills in messages, timestamp and previous run.
type AgentContext struct {
	Files        []string
	FileContents map[string]string
	Messages     []AgentMessage
	Timestamp    time.Time
	PreviousRun  *AgentRunResult
}

// Agent is the contract every concrete agent kind implements. Concrete
// implementations typically embed usecase/agents.BaseAgent for config,
// status tracking and domain matching.
type Agent interface {
	ID() string
	Config() AgentConfig
	Status() AgentStatus
	SetStatus(status AgentStatus)

	// GeneratePrompt produces the instruction text the agent would hand
	// to an external executor. It must not mutate agent state.
	GeneratePrompt(actx AgentContext) (string, error)

	// Execute performs the agent's unit of work. Implementations set
	// status to AgentRunning on entry and AgentCompleted on success.
	Execute(ctx context.Context, actx AgentContext) (*AgentRunResult, error)

	// HandleMessage reacts to an inbound bus message. Errors propagate
	// to the publisher.
	HandleMessage(ctx context.Context, msg AgentMessage) error

	// ContextFiles returns the read patterns for context assembly:
	// the configured read paths, or a single catch-all when unrestricted.
	ContextFiles() []string
}
