package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/internal/domain"
)

func TestScriptedDefaultPrompt(t *testing.T) {
	a := NewScripted(domain.AgentConfig{
		ID:      "writer",
		Persona: domain.Persona{Name: "Ada", Role: "backend maintainer"},
		Domain:  domain.AgentDomain{WritePaths: []string{"src/**", "go.mod"}},
	}, Hooks{}, testLogger())

	prompt, err := a.GeneratePrompt(domain.AgentContext{
		Messages: []domain.AgentMessage{{ID: "m1"}},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Ada")
	assert.Contains(t, prompt, "backend maintainer")
	assert.Contains(t, prompt, "src/**, go.mod")
	assert.Contains(t, prompt, "1 pending message")
}

func TestScriptedCustomTemplate(t *testing.T) {
	a := NewScripted(domain.AgentConfig{
		ID:             "writer",
		Persona:        domain.Persona{Name: "Ada"},
		Domain:         domain.AgentDomain{WritePaths: []string{"src/**"}},
		PromptTemplate: "Hello {{.Persona.Name}}, model={{.Model}}",
		Model:          "large-v2",
	}, Hooks{}, testLogger())

	prompt, err := a.GeneratePrompt(domain.AgentContext{})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, model=large-v2", prompt)
}

func TestScriptedExecuteSuccess(t *testing.T) {
	a := NewScripted(testConfig("writer"), Hooks{
		Run: func(_ context.Context, _ domain.AgentContext) (*domain.AgentRunResult, error) {
			return &domain.AgentRunResult{
				Status:       domain.RunSuccess,
				ChangedFiles: []string{"src/writer/a.go"},
			}, nil
		},
	}, testLogger())

	res, err := a.Execute(context.Background(), domain.AgentContext{Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, domain.AgentCompleted, a.Status())
	assert.Equal(t, "writer", res.AgentID)
	assert.Equal(t, domain.RunSuccess, res.Status)
	assert.False(t, res.Timestamp.IsZero())
}

func TestScriptedExecuteFailureSetsErrorStatus(t *testing.T) {
	boom := errors.New("executor unavailable")
	a := NewScripted(testConfig("writer"), Hooks{
		Run: func(_ context.Context, _ domain.AgentContext) (*domain.AgentRunResult, error) {
			return nil, boom
		},
	}, testLogger())

	_, err := a.Execute(context.Background(), domain.AgentContext{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.AgentError, a.Status())
}

func TestScriptedHandleMessageHook(t *testing.T) {
	var got domain.AgentMessage
	a := NewScripted(testConfig("writer"), Hooks{
		OnMessage: func(_ context.Context, msg domain.AgentMessage) error {
			got = msg
			return nil
		},
	}, testLogger())

	msg := domain.AgentMessage{ID: "m1", From: "reviewer", Type: domain.MessageRequest}
	require.NoError(t, a.HandleMessage(context.Background(), msg))
	assert.Equal(t, "m1", got.ID)
}
