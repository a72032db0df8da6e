package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	sqlitestore "github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func TestReaderStore_GetReader_Configured(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedReader(t, conn, "reader-001", "Main Entrance")
	rs := sqlitestore.NewReaderStore(conn, w)

	r, err := rs.GetReader(context.Background(), "reader-001")
	if err != nil {
		t.Fatalf("GetReader: %v", err)
	}
	if r.Name != "Main Entrance" {
		t.Errorf("expected name=Main Entrance, got %q", r.Name)
	}
	if !r.Enabled {
		t.Error("expected enabled=true")
	}
	if r.SecurityMode != types.SecuritySecure {
		t.Errorf("expected security_mode=secure, got %q", r.SecurityMode)
	}
}

func TestReaderStore_GetReader_NotFound(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	rs := sqlitestore.NewReaderStore(conn, w)

	_, err := rs.GetReader(context.Background(), "nope")
	if !errors.Is(err, store.ErrReaderNotFound) {
		t.Fatalf("expected ErrReaderNotFound, got %v", err)
	}

	_, err = rs.GetReader(context.Background(), "   ")
	if !errors.Is(err, store.ErrReaderNotFound) {
		t.Fatalf("expected ErrReaderNotFound for blank id, got %v", err)
	}
}

func TestReaderStore_UpsertReader_InsertThenUpdate(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	rs := sqlitestore.NewReaderStore(conn, w)
	ctx := context.Background()

	if err := rs.UpsertReader(ctx, types.Reader{ID: "reader-009", Name: "Dock", Enabled: false}); err != nil {
		t.Fatalf("UpsertReader insert: %v", err)
	}
	if err := rs.UpsertReader(ctx, types.Reader{
		ID: "reader-009", Name: "Loading Dock", Enabled: true, SecurityMode: types.SecuritySecure,
	}); err != nil {
		t.Fatalf("UpsertReader update: %v", err)
	}

	r, err := rs.GetReader(ctx, "reader-009")
	if err != nil {
		t.Fatalf("GetReader: %v", err)
	}
	if r.Name != "Loading Dock" || !r.Enabled || r.SecurityMode != types.SecuritySecure {
		t.Errorf("unexpected reader after update: %+v", r)
	}
}

func TestReaderStore_GetAllReaders_Ordered(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	seedReader(t, conn, "reader-b", "B")
	seedReader(t, conn, "reader-a", "A")
	rs := sqlitestore.NewReaderStore(conn, w)

	all, err := rs.GetAllReaders(context.Background())
	if err != nil {
		t.Fatalf("GetAllReaders: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 readers, got %d", len(all))
	}
	if all[0].ID != "reader-a" || all[1].ID != "reader-b" {
		t.Errorf("expected readers ordered by id, got %s, %s", all[0].ID, all[1].ID)
	}
}

func TestReaderStore_MarkSeen_CreatesDisabledReader(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	rs := sqlitestore.NewReaderStore(conn, w)
	ctx := context.Background()

	seen := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := rs.MarkSeen(ctx, "reader-new", seen); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	r, err := rs.GetReader(ctx, "reader-new")
	if err != nil {
		t.Fatalf("GetReader: %v", err)
	}
	if r.Enabled {
		t.Error("expected unknown reader to start disabled")
	}
	if !r.LastSeen.Equal(seen) {
		t.Errorf("expected last_seen=%v, got %v", seen, r.LastSeen)
	}
}
