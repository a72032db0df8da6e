package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

type ReaderPluginStore struct {
	mu      sync.RWMutex
	mapping map[string][]string
}

func NewReaderPluginStore() *ReaderPluginStore {
	return &ReaderPluginStore{mapping: make(map[string][]string)}
}

func (s *ReaderPluginStore) GetPluginsForReader(_ context.Context, readerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.mapping[readerID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (s *ReaderPluginStore) SetPluginsForReader(_ context.Context, readerID string, pluginIDs []string) error {
	ids := make([]string, len(pluginIDs))
	copy(ids, pluginIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapping[readerID] = ids
	return nil
}

var _ store.ReaderPluginStore = (*ReaderPluginStore)(nil)
