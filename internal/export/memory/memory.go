// Package memory is an in-process export sink used in development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finapp/internal/export"
)

type Store struct {
	mu    sync.Mutex
	rows  []export.Row
	index map[string]int
}

func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Export stores the row once per event id and returns a synthetic reference.
func (s *Store) Export(_ context.Context, r export.Row) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[r.EventID]; ok {
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, r)
	s.index[r.EventID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the exported rows in export order.
func (s *Store) Rows() []export.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.Row(nil), s.rows...)
}
