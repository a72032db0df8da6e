package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type ReaderStore struct {
	mu      sync.RWMutex
	readers map[string]types.Reader
}

func NewReaderStore(readers ...types.Reader) *ReaderStore {
	s := &ReaderStore{readers: make(map[string]types.Reader, len(readers))}
	for _, r := range readers {
		r.ID = strings.TrimSpace(r.ID)
		if r.ID != "" {
			s.readers[r.ID] = r
		}
	}
	return s
}

func (s *ReaderStore) GetReader(_ context.Context, readerID string) (types.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readers[readerID]
	if !ok {
		return types.Reader{}, store.ErrReaderNotFound
	}
	return r, nil
}

func (s *ReaderStore) GetAllReaders(_ context.Context) ([]types.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Reader, 0, len(s.readers))
	for _, r := range s.readers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *ReaderStore) UpsertReader(_ context.Context, r types.Reader) error {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.readers[r.ID]; ok && r.LastSeen.IsZero() {
		r.LastSeen = prev.LastSeen
	}
	s.readers[r.ID] = r
	return nil
}

func (s *ReaderStore) MarkSeen(_ context.Context, readerID string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[readerID]
	if !ok {
		// Unknown readers start disabled until configured.
		r = types.Reader{ID: readerID, SecurityMode: types.SecurityClearText}
	}
	r.LastSeen = t
	s.readers[readerID] = r
	return nil
}

var _ store.ReaderStore = (*ReaderStore)(nil)
