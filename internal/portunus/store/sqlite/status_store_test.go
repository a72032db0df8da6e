package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/sqlite"
)

func TestStatusStore_RecordStatus_UpdatesSnapshot(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedReader(t, conn, "reader-001", "Lobby")
	ss := sqlitestore.NewStatusStore(conn, w)
	ctx := context.Background()

	first := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	if err := ss.RecordStatus(ctx, store.StatusRecord{ReaderID: "reader-001", Online: true, ReceivedAt: first}); err != nil {
		t.Fatalf("RecordStatus online: %v", err)
	}
	second := first.Add(time.Minute)
	if err := ss.RecordStatus(ctx, store.StatusRecord{ReaderID: "reader-001", Online: false, ReceivedAt: second}); err != nil {
		t.Fatalf("RecordStatus offline: %v", err)
	}

	if n := countRows(t, conn, `SELECT COUNT(*) FROM reader_status_events WHERE reader_id = ?`, "reader-001"); n != 2 {
		t.Errorf("expected 2 status rows, got %d", n)
	}

	var online sql.NullInt64
	var lastSeen sql.NullInt64
	err := conn.QueryRowContext(ctx,
		`SELECT online, last_seen_at_ms FROM readers WHERE reader_id = ?`, "reader-001",
	).Scan(&online, &lastSeen)
	if err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if !online.Valid || online.Int64 != 0 {
		t.Errorf("expected snapshot online=0, got %v", online)
	}
	if !lastSeen.Valid || lastSeen.Int64 != second.UnixMilli() {
		t.Errorf("expected last_seen=%d, got %v", second.UnixMilli(), lastSeen)
	}
}

func TestStatusStore_RecordStatus_EmptyReaderID_NoOp(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ss := sqlitestore.NewStatusStore(conn, w)

	if err := ss.RecordStatus(context.Background(), store.StatusRecord{ReaderID: "  ", Online: true}); err != nil {
		t.Fatalf("RecordStatus: %v", err)
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM reader_status_events`); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}
}

func TestStatusStore_PruneOlderThan_PreservesSnapshot(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedReader(t, conn, "reader-001", "Lobby")
	ss := sqlitestore.NewStatusStore(conn, w)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -40)
	if err := ss.RecordStatus(ctx, store.StatusRecord{ReaderID: "reader-001", Online: true, ReceivedAt: old}); err != nil {
		t.Fatalf("RecordStatus: %v", err)
	}

	deleted, err := ss.PruneOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM readers WHERE reader_id = ? AND online = 1`, "reader-001"); n != 1 {
		t.Error("expected reader snapshot to survive pruning")
	}
}
