package store

import (
	"context"
	"time"
)

// StatusRecord is one online/offline report from a reader.
type StatusRecord struct {
	ReaderID   string
	Online     bool
	ReceivedAt time.Time
}

// StatusStore keeps reader status history and the per-reader snapshot.
type StatusStore interface {
	RecordStatus(ctx context.Context, rec StatusRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
