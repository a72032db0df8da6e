package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type FeedbackStore struct {
	mu       sync.RWMutex
	settings map[store.FeedbackOutcome]types.ReaderFeedback
}

func NewFeedbackStore() *FeedbackStore {
	return &FeedbackStore{settings: make(map[store.FeedbackOutcome]types.ReaderFeedback)}
}

func (s *FeedbackStore) GetSuccessFeedback(_ context.Context) (types.ReaderFeedback, bool, error) {
	return s.get(store.OutcomeSuccess)
}

func (s *FeedbackStore) GetFailureFeedback(_ context.Context) (types.ReaderFeedback, bool, error) {
	return s.get(store.OutcomeFailure)
}

func (s *FeedbackStore) get(o store.FeedbackOutcome) (types.ReaderFeedback, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fb, ok := s.settings[o]
	return fb, ok, nil
}

func (s *FeedbackStore) SetFeedback(_ context.Context, outcome store.FeedbackOutcome, fb types.ReaderFeedback) error {
	if err := fb.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[outcome] = fb
	return nil
}

var _ store.FeedbackStore = (*FeedbackStore)(nil)
