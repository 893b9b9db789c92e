// Package msgstore persists bus messages as JSON files. The bus itself
// never touches the filesystem; it computes the path and this adapter,
// attached as the bus sink, does the writing.
package msgstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"roundtable/internal/domain"
	"roundtable/internal/usecase/bus"
)

// FileStore writes one JSON file per message under
// <dir>/<date>/<id>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates a message store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("msgstore: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save persists a message. It implements domain.MessageSink.
func (s *FileStore) Save(_ context.Context, msg domain.AgentMessage) error {
	data, err := bus.Serialize(msg)
	if err != nil {
		return fmt.Errorf("msgstore: %w", err)
	}

	path := bus.MessagePath(s.dir, msg)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("msgstore: create day dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("msgstore: write %s: %w", path, err)
	}
	return nil
}

// Load reads a single message back from its file.
func (s *FileStore) Load(path string) (domain.AgentMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AgentMessage{}, fmt.Errorf("msgstore: read %s: %w", path, err)
	}
	msg, err := bus.Parse(data)
	if err != nil {
		return domain.AgentMessage{}, fmt.Errorf("msgstore: %w", err)
	}
	return msg, nil
}

// ListDay returns all messages stored for a calendar date (UTC,
// formatted 2006-01-02), ordered by id. ULID ids sort by creation time.
func (s *FileStore) ListDay(day string) ([]domain.AgentMessage, error) {
	dir := filepath.Join(s.dir, day)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgstore: read day dir: %w", err)
	}

	var out []domain.AgentMessage
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		msg, err := s.Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
