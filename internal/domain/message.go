package domain

import (
	"context"
	"time"
)

// MessageType identifies the kind of message on the bus.
type MessageType string

const (
	MessageSignal   MessageType = "signal"
	MessageDecision MessageType = "decision"
	MessageRequest  MessageType = "request"
	MessageStatus   MessageType = "status"
)

// Reserved sender/target identities.
const (
	// SenderCoordinator is the from-identity used by the coordinator itself.
	SenderCoordinator = "coordinator"
	// BroadcastTarget addresses every registered agent except the sender.
	BroadcastTarget = "broadcast"
)

// AgentMessage is the envelope exchanged between agents over the bus.
// Messages are immutable once created and are not retained by the bus;
// durable storage is an external collaborator's concern.
type AgentMessage struct {
	ID           string         `json:"id"`
	From         string         `json:"from"`
	To           string         `json:"to"`
	Type         MessageType    `json:"type"`
	Payload      map[string]any `json:"payload"`
	Timestamp    time.Time      `json:"timestamp"`
	RelatedFiles []string       `json:"related_files,omitempty"`
}

// MessageHandler is a callback invoked when a message is delivered.
// A returned error propagates out of the publish call.
type MessageHandler func(ctx context.Context, msg AgentMessage) error

// MessageSink receives every published message, typically for durable
// persistence alongside in-memory delivery.
type MessageSink interface {
	Save(ctx context.Context, msg AgentMessage) error
}
