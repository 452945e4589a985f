package repository

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/okian/sentinel/internal/domain/model"
)

// record is one line of the JSONL file.
type record struct {
	Kind      string                `json:"kind"`
	Detection *model.Detection      `json:"detection,omitempty"`
	Session   *model.SessionSummary `json:"session,omitempty"`
}

// JSONLStore appends one JSON object per line to a file.
type JSONLStore struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// OpenJSONL opens path for appending, creating it if needed.
func OpenJSONL(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrPersist, path, err)
	}
	return &JSONLStore{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// StoreDetection appends a detection line.
func (s *JSONLStore) StoreDetection(_ context.Context, d model.Detection) error {
	return s.append(record{Kind: "detection", Detection: &d})
}

// SaveSessionSummary appends a session line.
func (s *JSONLStore) SaveSessionSummary(_ context.Context, sum model.SessionSummary) error {
	return s.append(record{Kind: "session", Session: &sum})
}

func (s *JSONLStore) append(r record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("%w: %s is closed", ErrPersist, s.path)
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersist, s.path, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrPersist, s.path, err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	s.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
