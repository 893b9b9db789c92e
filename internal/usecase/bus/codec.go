package bus

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"roundtable/internal/domain"
)

// Serialize encodes a message as JSON.
func Serialize(msg domain.AgentMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("serialize message %s: %w", msg.ID, err)
	}
	return data, nil
}

// Parse decodes a message from its JSON form. The timestamp round-trips
// to the same instant; all other fields round-trip structurally.
func Parse(data []byte) (domain.AgentMessage, error) {
	var msg domain.AgentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.AgentMessage{}, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}

// MessagePath derives the storage path for a message under base:
// <base>/<creation date, UTC>/<id>.json. The bus never writes there
// itself; the path is computed for the persistence adapter.
func MessagePath(base string, msg domain.AgentMessage) string {
	day := msg.Timestamp.UTC().Format("2006-01-02")
	return filepath.Join(base, day, msg.ID+".json")
}

func nowUTC() time.Time { return time.Now().UTC() }

// newID generates a ULID for the given time.
func newID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
