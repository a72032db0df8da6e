package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

type ReaderPluginStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewReaderPluginStore(db *sql.DB, writer *dbpkg.Worker) *ReaderPluginStore {
	return &ReaderPluginStore{db: db, writer: writer}
}

func (s *ReaderPluginStore) GetPluginsForReader(ctx context.Context, readerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT plugin_id FROM reader_plugins
WHERE reader_id = ?
ORDER BY position;
`, readerID)
	if err != nil {
		return nil, fmt.Errorf("GetPluginsForReader query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("GetPluginsForReader scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPluginsForReader rows: %w", err)
	}
	return ids, nil
}

// SetPluginsForReader replaces the reader's assignment with pluginIDs in
// the given order.
func (s *ReaderPluginStore) SetPluginsForReader(ctx context.Context, readerID string, pluginIDs []string) error {
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureReader(ctx, tx, readerID, nowMs); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reader_plugins WHERE reader_id = ?;`, readerID); err != nil {
			return fmt.Errorf("SetPluginsForReader clear: %w", err)
		}
		for pos, id := range pluginIDs {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO reader_plugins(reader_id, position, plugin_id) VALUES (?, ?, ?);
`, readerID, pos, id); err != nil {
				return fmt.Errorf("SetPluginsForReader insert %s: %w", id, err)
			}
		}
		return nil
	})
}

var _ store.ReaderPluginStore = (*ReaderPluginStore)(nil)
