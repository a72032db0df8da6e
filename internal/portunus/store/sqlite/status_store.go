package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

type StatusStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewStatusStore(db *sql.DB, writer *dbpkg.Worker) *StatusStore {
	return &StatusStore{db: db, writer: writer}
}

// RecordStatus appends a status row and refreshes the reader snapshot.
func (s *StatusStore) RecordStatus(ctx context.Context, rec store.StatusRecord) error {
	readerID := strings.TrimSpace(rec.ReaderID)
	if readerID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()
	online := boolInt(rec.Online)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureReader(ctx, tx, readerID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO reader_status_events(reader_id, online, received_at_ms)
VALUES (?, ?, ?);
`, readerID, online, recvMs); err != nil {
			return fmt.Errorf("RecordStatus insert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE readers
SET online          = ?,
    last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE reader_id = ?;
`, online, recvMs, recvMs, readerID); err != nil {
			return fmt.Errorf("RecordStatus update snapshot: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes status history received before cutoff.  The
// reader snapshot columns are not affected.
func (s *StatusStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM reader_status_events
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

var _ store.StatusStore = (*StatusStore)(nil)
