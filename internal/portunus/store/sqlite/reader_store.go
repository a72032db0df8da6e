package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type ReaderStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewReaderStore(db *sql.DB, writer *dbpkg.Worker) *ReaderStore {
	return &ReaderStore{db: db, writer: writer}
}

const readerColumns = `reader_id, display_name, enabled, security_mode, last_seen_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReader(row rowScanner) (types.Reader, error) {
	var (
		r        types.Reader
		enabled  int
		mode     string
		lastSeen sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Name, &enabled, &mode, &lastSeen); err != nil {
		return types.Reader{}, err
	}
	r.Enabled = enabled == 1
	r.SecurityMode = types.SecurityMode(mode)
	if lastSeen.Valid {
		r.LastSeen = time.UnixMilli(lastSeen.Int64).UTC()
	}
	return r, nil
}

func (s *ReaderStore) GetReader(ctx context.Context, readerID string) (types.Reader, error) {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return types.Reader{}, store.ErrReaderNotFound
	}

	r, err := scanReader(s.db.QueryRowContext(ctx,
		`SELECT `+readerColumns+` FROM readers WHERE reader_id = ?;`, readerID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Reader{}, store.ErrReaderNotFound
	}
	if err != nil {
		return types.Reader{}, fmt.Errorf("GetReader query: %w", err)
	}
	return r, nil
}

func (s *ReaderStore) GetAllReaders(ctx context.Context) ([]types.Reader, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readerColumns+` FROM readers ORDER BY reader_id;`)
	if err != nil {
		return nil, fmt.Errorf("GetAllReaders query: %w", err)
	}
	defer rows.Close()

	var out []types.Reader
	for rows.Next() {
		r, err := scanReader(rows)
		if err != nil {
			return nil, fmt.Errorf("GetAllReaders scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetAllReaders rows: %w", err)
	}
	return out, nil
}

// UpsertReader writes the configured attributes of a reader.  Operational
// columns (online, last_seen) are left untouched.
func (s *ReaderStore) UpsertReader(ctx context.Context, r types.Reader) error {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return nil
	}
	if r.SecurityMode == "" {
		r.SecurityMode = types.SecurityClearText
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO readers(
  reader_id, display_name, enabled, security_mode, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(reader_id) DO UPDATE SET
  display_name  = excluded.display_name,
  enabled       = excluded.enabled,
  security_mode = excluded.security_mode,
  updated_at_ms = excluded.updated_at_ms;
`, r.ID, r.Name, boolInt(r.Enabled), string(r.SecurityMode), nowMs, nowMs); err != nil {
			return fmt.Errorf("UpsertReader: %w", err)
		}
		return nil
	})
}

// MarkSeen ensures the reader row exists (even if unconfigured) and updates
// last_seen.
func (s *ReaderStore) MarkSeen(ctx context.Context, readerID string, t time.Time) error {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureReader(ctx, tx, readerID, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE readers
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE reader_id = ?;
`, ms, ms, readerID); err != nil {
			return fmt.Errorf("MarkSeen update reader: %w", err)
		}
		return nil
	})
}

var _ store.ReaderStore = (*ReaderStore)(nil)
