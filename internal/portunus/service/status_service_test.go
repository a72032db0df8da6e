package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// recordingPublisher records the status events handed to it.
type recordingPublisher struct {
	mu     sync.Mutex
	events []types.ReaderStatusChanged
}

func (p *recordingPublisher) ProcessStatusChange(_ context.Context, ev types.ReaderStatusChanged) types.ReaderStatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.ReaderName = "enriched"
	p.events = append(p.events, ev)
	return ev
}

type brokenStatusStore struct{}

func (brokenStatusStore) RecordStatus(context.Context, store.StatusRecord) error {
	return errors.New("disk full")
}

func (brokenStatusStore) PruneOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestStatusService_Record(t *testing.T) {
	ss := memory.NewStatusStore()
	pub := &recordingPublisher{}
	svc := service.NewStatusService(ss, pub, silentLogger())

	got, err := svc.Record(context.Background(), types.ReaderStatusRequest{ReaderID: "  R1 ", Online: true})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got.ReaderID != "R1" || !got.Online || got.ReaderName != "enriched" {
		t.Errorf("unexpected status %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}

	recs := ss.Records()
	if len(recs) != 1 || recs[0].ReaderID != "R1" || !recs[0].Online {
		t.Errorf("unexpected status history %+v", recs)
	}
}

func TestStatusService_RejectsEmptyReader(t *testing.T) {
	svc := service.NewStatusService(memory.NewStatusStore(), &recordingPublisher{}, silentLogger())

	if _, err := svc.Record(context.Background(), types.ReaderStatusRequest{ReaderID: " "}); !errors.Is(err, service.ErrInvalidReaderID) {
		t.Errorf("expected ErrInvalidReaderID, got %v", err)
	}
}

func TestStatusService_StoreFailureStillPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc := service.NewStatusService(brokenStatusStore{}, pub, silentLogger())

	if _, err := svc.Record(context.Background(), types.ReaderStatusRequest{ReaderID: "R1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected status to be published despite store failure")
	}
}
