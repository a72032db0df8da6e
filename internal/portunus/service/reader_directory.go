package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ReaderDirectory is the read side of reader configuration used while
// processing events.  IDs are trimmed before they reach the store.
type ReaderDirectory struct {
	store store.ReaderStore
}

func NewReaderDirectory(st store.ReaderStore) *ReaderDirectory {
	return &ReaderDirectory{store: st}
}

func (d *ReaderDirectory) GetReader(ctx context.Context, readerID string) (types.Reader, error) {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return types.Reader{}, store.ErrReaderNotFound
	}
	return d.store.GetReader(ctx, readerID)
}

func (d *ReaderDirectory) GetAllReaders(ctx context.Context) ([]types.Reader, error) {
	return d.store.GetAllReaders(ctx)
}

// IsEnabled reports false for unknown readers.
func (d *ReaderDirectory) IsEnabled(ctx context.Context, readerID string) (bool, error) {
	r, err := d.GetReader(ctx, readerID)
	if errors.Is(err, store.ErrReaderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.Enabled, nil
}

func (d *ReaderDirectory) NoteSeen(ctx context.Context, readerID string) error {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return nil
	}
	return d.store.MarkSeen(ctx, readerID, time.Now().UTC())
}
