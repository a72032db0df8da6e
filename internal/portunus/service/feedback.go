package service

import (
	"context"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// FeedbackSettings resolves the configured reader feedback, falling back to
// the built-in defaults when nothing is configured.
type FeedbackSettings struct {
	store store.FeedbackStore
}

func NewFeedbackSettings(fs store.FeedbackStore) *FeedbackSettings {
	return &FeedbackSettings{store: fs}
}

func (s *FeedbackSettings) GetSuccessFeedback(ctx context.Context) (types.ReaderFeedback, error) {
	fb, ok, err := s.store.GetSuccessFeedback(ctx)
	if err != nil {
		return types.ReaderFeedback{}, err
	}
	if !ok {
		return types.DefaultSuccessFeedback(), nil
	}
	return fb, nil
}

func (s *FeedbackSettings) GetFailureFeedback(ctx context.Context) (types.ReaderFeedback, error) {
	fb, ok, err := s.store.GetFailureFeedback(ctx)
	if err != nil {
		return types.ReaderFeedback{}, err
	}
	if !ok {
		return types.DefaultFailureFeedback(), nil
	}
	return fb, nil
}
