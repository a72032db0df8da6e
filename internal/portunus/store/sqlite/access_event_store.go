package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = rec.DecidedAt
	}

	occurredMs := rec.OccurredAt.UTC().UnixMilli()
	decidedMs := rec.DecidedAt.UTC().UnixMilli()

	var credentialHash any
	if len(rec.CredentialHash) == 32 {
		credentialHash = rec.CredentialHash
	}

	var bitLength any
	if rec.BitLength > 0 {
		bitLength = rec.BitLength
	}

	var reason any
	if rec.CompletionReason != "" {
		reason = rec.CompletionReason
	}

	var pluginResults any
	if len(rec.PluginResults) > 0 {
		pluginResults = string(rec.PluginResults)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureReader(ctx, tx, rec.ReaderID, decidedMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  reader_id, kind, credential_hash, bit_length, completion_reason,
  occurred_at_ms, decision_granted, decision_reason, plugin_results,
  is_error, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ReaderID, string(rec.Kind), credentialHash, bitLength, reason,
			occurredMs, boolInt(rec.Granted), rec.Reason, pluginResults,
			boolInt(rec.Error), decidedMs,
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes audit rows decided before cutoff and returns the
// number of rows removed.
func (s *AccessEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM access_events
WHERE decided_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

var _ store.AccessEventStore = (*AccessEventStore)(nil)
