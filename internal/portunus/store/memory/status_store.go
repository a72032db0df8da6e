package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

type StatusStore struct {
	mu      sync.Mutex
	records []store.StatusRecord
}

func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

func (s *StatusStore) RecordStatus(_ context.Context, rec store.StatusRecord) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *StatusStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// Records returns a copy of the status history.  Test-only helper.
func (s *StatusStore) Records() []store.StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.StatusRecord, len(s.records))
	copy(out, s.records)
	return out
}

var _ store.StatusStore = (*StatusStore)(nil)
