package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/internal/domain"
)

func testLogger() *slog.Logger { return slog.Default() }

func TestNewMessageStampsIDAndTimestamp(t *testing.T) {
	before := time.Now().UTC()
	msg := NewMessage("a", "b", domain.MessageSignal, map[string]any{"k": "v"}, "src/a.go")
	after := time.Now().UTC()

	require.NotEmpty(t, msg.ID)
	assert.Equal(t, "a", msg.From)
	assert.Equal(t, "b", msg.To)
	assert.Equal(t, domain.MessageSignal, msg.Type)
	assert.Equal(t, []string{"src/a.go"}, msg.RelatedFiles)
	assert.False(t, msg.Timestamp.Before(before))
	assert.False(t, msg.Timestamp.After(after))

	other := NewMessage("a", "b", domain.MessageSignal, nil)
	assert.NotEqual(t, msg.ID, other.ID, "ids must be unique")
}

func TestPublishDeliversToTarget(t *testing.T) {
	b := New(testLogger())

	var mu sync.Mutex
	var got []string
	b.Subscribe("reviewer", func(_ context.Context, msg domain.AgentMessage) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.ID)
		return nil
	})
	b.Subscribe("writer", func(_ context.Context, _ domain.AgentMessage) error {
		t.Error("writer must not receive a message addressed to reviewer")
		return nil
	})

	msg := NewMessage("writer", "reviewer", domain.MessageRequest, nil)
	require.NoError(t, b.Publish(context.Background(), msg))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{msg.ID}, got)
}

func TestPublishUnknownTargetIsNoop(t *testing.T) {
	b := New(testLogger())
	err := b.Publish(context.Background(), NewMessage("a", "ghost", domain.MessageSignal, nil))
	assert.NoError(t, err)
}

func TestBroadcastSkipsSender(t *testing.T) {
	b := New(testLogger())

	var mu sync.Mutex
	received := map[string]int{}
	for _, id := range []string{"alpha", "beta", "gamma"} {
		id := id
		b.Subscribe(id, func(_ context.Context, _ domain.AgentMessage) error {
			mu.Lock()
			defer mu.Unlock()
			received[id]++
			return nil
		})
	}

	require.NoError(t, b.Broadcast(context.Background(), "alpha", domain.MessageStatus, nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, received["alpha"], "sender must not receive its own broadcast")
	assert.Equal(t, 1, received["beta"])
	assert.Equal(t, 1, received["gamma"])
}

func TestPublishWaitsForAllHandlers(t *testing.T) {
	b := New(testLogger())

	var done sync.WaitGroup
	done.Add(2)
	var mu sync.Mutex
	finished := 0
	slow := func(_ context.Context, _ domain.AgentMessage) error {
		defer done.Done()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		finished++
		mu.Unlock()
		return nil
	}
	b.Subscribe("x", slow)
	b.Subscribe("x", slow)

	require.NoError(t, b.Publish(context.Background(), NewMessage("y", "x", domain.MessageSignal, nil)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, finished, "publish must not return before handlers complete")
}

func TestPublishPropagatesHandlerErrors(t *testing.T) {
	b := New(testLogger())
	want := errors.New("handler exploded")
	b.Subscribe("x", func(_ context.Context, _ domain.AgentMessage) error { return want })
	b.Subscribe("x", func(_ context.Context, _ domain.AgentMessage) error { return nil })

	err := b.Publish(context.Background(), NewMessage("y", "x", domain.MessageSignal, nil))
	assert.ErrorIs(t, err, want)
}

func TestPublishRecoversHandlerPanic(t *testing.T) {
	b := New(testLogger())
	b.Subscribe("x", func(_ context.Context, _ domain.AgentMessage) error { panic("boom") })

	err := b.Publish(context.Background(), NewMessage("y", "x", domain.MessageSignal, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New(testLogger())
	unsub := b.Subscribe("x", func(_ context.Context, _ domain.AgentMessage) error {
		t.Error("unsubscribed handler must not run")
		return nil
	})

	unsub()
	unsub() // second call is a no-op

	require.NoError(t, b.Publish(context.Background(), NewMessage("y", "x", domain.MessageSignal, nil)))
	assert.Equal(t, 0, b.Subscribers("x"))
}

func TestDuplicateHandlersEachRemovedIndependently(t *testing.T) {
	b := New(testLogger())

	var mu sync.Mutex
	calls := 0
	handler := func(_ context.Context, _ domain.AgentMessage) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}
	unsub1 := b.Subscribe("x", handler)
	b.Subscribe("x", handler)
	require.Equal(t, 2, b.Subscribers("x"))

	unsub1()
	require.Equal(t, 1, b.Subscribers("x"))

	require.NoError(t, b.Publish(context.Background(), NewMessage("y", "x", domain.MessageSignal, nil)))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestSerializeParseRoundTrip(t *testing.T) {
	msg := NewMessage("writer", "reviewer", domain.MessageDecision,
		map[string]any{"verdict": "approve", "score": 0.75},
		"src/a.go", "src/b.go",
	)

	data, err := Serialize(msg)
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.From, got.From)
	assert.Equal(t, msg.To, got.To)
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.RelatedFiles, got.RelatedFiles)
	assert.Equal(t, "approve", got.Payload["verdict"])
	assert.InDelta(t, 0.75, got.Payload["score"], 1e-9)
	assert.True(t, msg.Timestamp.Equal(got.Timestamp), "timestamp must denote the same instant")
}

func TestMessagePath(t *testing.T) {
	msg := NewMessage("a", "b", domain.MessageSignal, nil)
	want := filepath.Join(".agents/messages", msg.Timestamp.UTC().Format("2006-01-02"), msg.ID+".json")
	assert.Equal(t, want, MessagePath(".agents/messages", msg))
}

func TestClosedBusRejectsPublish(t *testing.T) {
	b := New(testLogger())
	b.Close()
	err := b.Publish(context.Background(), NewMessage("a", "b", domain.MessageSignal, nil))
	assert.ErrorIs(t, err, domain.ErrBusClosed)
}

type failingSink struct{}

func (failingSink) Save(_ context.Context, _ domain.AgentMessage) error {
	return fmt.Errorf("disk full")
}

func TestSinkFailureDoesNotBreakDelivery(t *testing.T) {
	b := New(testLogger(), WithSink(failingSink{}))

	delivered := false
	var mu sync.Mutex
	b.Subscribe("x", func(_ context.Context, _ domain.AgentMessage) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = true
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), NewMessage("y", "x", domain.MessageSignal, nil)))
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, delivered)
}
