// Package bus provides the in-process publish/subscribe router that
// carries messages between agents. Delivery is purely in-memory; the
// optional sink hook lets a persistence adapter record traffic without
// the bus performing any file I/O itself.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"roundtable/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.MessageHandler
}

// Bus routes messages to handlers registered per agent id.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   atomic.Uint64
	sink     domain.MessageSink
	logger   *slog.Logger
	closed   atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithSink attaches a persistence sink that receives every published
// message. Sink failures are logged, never propagated: durability is
// best-effort and must not break delivery.
func WithSink(sink domain.MessageSink) Option {
	return func(b *Bus) { b.sink = sink }
}

// New creates a message bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewMessage constructs a message with a fresh id and a UTC timestamp.
// It does not publish.
func NewMessage(from, to string, typ domain.MessageType, payload map[string]any, relatedFiles ...string) domain.AgentMessage {
	now := nowUTC()
	return domain.AgentMessage{
		ID:           newID(now),
		From:         from,
		To:           to,
		Type:         typ,
		Payload:      payload,
		Timestamp:    now,
		RelatedFiles: relatedFiles,
	}
}

// Publish fans a message out to its target handlers and returns once
// every handler has finished. For a broadcast target every registered
// agent id except the sender receives the message; otherwise only the
// handlers registered for the target id. Unknown targets yield zero
// handlers and are not an error. Handler errors (and recovered panics)
// are joined and returned to the caller.
func (b *Bus) Publish(ctx context.Context, msg domain.AgentMessage) error {
	if b.closed.Load() {
		return domain.WrapOp("bus.Publish", domain.ErrBusClosed)
	}

	if b.sink != nil {
		if err := b.sink.Save(ctx, msg); err != nil {
			b.logger.Warn("message sink failed", "message_id", msg.ID, "error", err)
		}
	}

	targets := b.resolve(msg)
	if len(targets) == 0 {
		return nil
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, sub := range targets {
		wg.Add(1)
		go func(sub subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("handler panic: %v", r))
					errMu.Unlock()
				}
			}()
			if err := sub.handler(ctx, msg); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(sub)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (b *Bus) resolve(msg domain.AgentMessage) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.To != domain.BroadcastTarget {
		out := make([]subscription, len(b.handlers[msg.To]))
		copy(out, b.handlers[msg.To])
		return out
	}

	var out []subscription
	for id, subs := range b.handlers {
		if id == msg.From {
			continue
		}
		out = append(out, subs...)
	}
	return out
}

// Broadcast builds and publishes a broadcast message from the sender.
func (b *Bus) Broadcast(ctx context.Context, from string, typ domain.MessageType, payload map[string]any) error {
	return b.Publish(ctx, NewMessage(from, domain.BroadcastTarget, typ, payload))
}

// Subscribe appends a handler for the agent id and returns an
// unsubscribe function. Duplicate handlers are allowed; each
// registration is removed independently. The returned function is
// idempotent and safe after the handler is already gone.
func (b *Bus) Subscribe(agentID string, handler domain.MessageHandler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.handlers[agentID] = append(b.handlers[agentID], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[agentID]
		for i, s := range subs {
			if s.id == id {
				b.handlers[agentID] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Subscribers returns the number of handlers registered for an agent id.
func (b *Bus) Subscribers(agentID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[agentID])
}

// Close prevents further publishes. In-flight publishes complete
// normally since Publish joins its handlers before returning.
func (b *Bus) Close() {
	b.closed.Store(true)
}
