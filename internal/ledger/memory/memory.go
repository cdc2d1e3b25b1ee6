package memory

import (
	"context"
	"fmt"
	"sync"

	"voicespese/internal/ledger"
)

// Store keeps the ledger in process, in first-insert order.
type Store struct {
	mu    sync.Mutex
	index map[int64]int
	rows  []ledger.Row
}

var _ ledger.Writer = (*Store)(nil)

func New() *Store {
	return &Store{index: make(map[int64]int)}
}

func (s *Store) Upsert(_ context.Context, row ledger.Row) (string, error) {
	if row.ID <= 0 {
		return "", fmt.Errorf("ledger row without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[row.ID]; ok {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	s.index[row.ID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the ledger.
func (s *Store) Rows() []ledger.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Row(nil), s.rows...)
}
