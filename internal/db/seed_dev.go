package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev creates a starter reader wired to the allow_all plugin so a fresh
// dev database can take card reads immediately.  It never overwrites rows
// that already exist.
func SeedDev(ctx context.Context, db *sql.DB, allowAllPluginID string) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO readers(
  reader_id, display_name, enabled, security_mode, created_at_ms, updated_at_ms
) VALUES ('reader-001', 'Main Entrance', 1, 'clear_text', ?, ?);
`, now, now); err != nil {
		return fmt.Errorf("seed reader reader-001: %w", err)
	}

	if allowAllPluginID == "" {
		return nil
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO reader_plugins(reader_id, position, plugin_id)
VALUES ('reader-001', 0, ?);
`, allowAllPluginID); err != nil {
		return fmt.Errorf("seed reader_plugins: %w", err)
	}

	return nil
}
