package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

var ErrReaderNotFound = errors.New("reader not found")

// ReaderStore is the reader configuration source.
type ReaderStore interface {
	GetReader(ctx context.Context, readerID string) (types.Reader, error)
	GetAllReaders(ctx context.Context) ([]types.Reader, error)
	UpsertReader(ctx context.Context, r types.Reader) error
	MarkSeen(ctx context.Context, readerID string, t time.Time) error
}

// ReaderPluginStore maps readers to the ordered plugin IDs that decide for them.
type ReaderPluginStore interface {
	GetPluginsForReader(ctx context.Context, readerID string) ([]string, error)
	SetPluginsForReader(ctx context.Context, readerID string, pluginIDs []string) error
}

// FeedbackStore holds the configured success/failure feedback. Implementations
// return ok=false when nothing has been configured.
type FeedbackStore interface {
	GetSuccessFeedback(ctx context.Context) (types.ReaderFeedback, bool, error)
	GetFailureFeedback(ctx context.Context) (types.ReaderFeedback, bool, error)
	SetFeedback(ctx context.Context, outcome FeedbackOutcome, fb types.ReaderFeedback) error
}

type FeedbackOutcome string

const (
	OutcomeSuccess FeedbackOutcome = "success"
	OutcomeFailure FeedbackOutcome = "failure"
)
