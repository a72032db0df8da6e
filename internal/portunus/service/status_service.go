package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// StatusPublisher enriches and publishes a reader status change.
type StatusPublisher interface {
	ProcessStatusChange(ctx context.Context, ev types.ReaderStatusChanged) types.ReaderStatusChanged
}

// StatusService records online/offline reports from readers and hands them
// on for enrichment and publication.
type StatusService struct {
	statusStore store.StatusStore
	publisher   StatusPublisher
	log         *slog.Logger
}

func NewStatusService(ss store.StatusStore, pub StatusPublisher, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{statusStore: ss, publisher: pub, log: logger}
}

func (s *StatusService) Record(ctx context.Context, req types.ReaderStatusRequest) (types.ReaderStatusChanged, error) {
	readerID := strings.TrimSpace(req.ReaderID)
	if readerID == "" {
		return types.ReaderStatusChanged{}, ErrInvalidReaderID
	}
	now := time.Now().UTC()

	// Status history is diagnostic; a failed write must not hold back the
	// status event itself.
	if err := s.statusStore.RecordStatus(ctx, store.StatusRecord{
		ReaderID:   readerID,
		Online:     req.Online,
		ReceivedAt: now,
	}); err != nil {
		s.log.Warn("record reader status failed", "reader_id", readerID, "error", err)
	}

	return s.publisher.ProcessStatusChange(ctx, types.ReaderStatusChanged{
		ReaderID:  readerID,
		Online:    req.Online,
		Timestamp: now,
	}), nil
}
