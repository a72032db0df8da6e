package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// ensureReader guarantees a readers row exists for readerID so that foreign
// keys from access_events and reader_status_events are satisfied.
//
// New rows start disabled: only site configuration enables a reader.
//
// Must be called inside an existing transaction.
func ensureReader(ctx context.Context, tx *sql.Tx, readerID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO readers(
  reader_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, readerID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureReader %s: %w", readerID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
