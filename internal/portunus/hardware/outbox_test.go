package hardware_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/hardware"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type dropCounter struct {
	mu sync.Mutex
	n  int
}

func (d *dropCounter) FeedbackDropped() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func TestOutbox_FIFOPerReader(t *testing.T) {
	o := hardware.NewOutbox(4, nil)
	ctx := context.Background()

	_, _ = o.SendFeedback(ctx, "R1", types.DefaultSuccessFeedback())
	_, _ = o.SendFeedback(ctx, "R2", types.DefaultFailureFeedback())
	_, _ = o.SendFeedback(ctx, "R1", types.DefaultFailureFeedback())

	got := o.Drain("R1", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 items for R1, got %d", len(got))
	}
	if got[0].Feedback.Type != types.FeedbackSuccess || got[1].Feedback.Type != types.FeedbackFailure {
		t.Errorf("expected FIFO order, got %v then %v", got[0].Feedback.Type, got[1].Feedback.Type)
	}
	if got[0].QueuedAt.IsZero() {
		t.Error("expected queued_at to be set")
	}
	if o.Pending("R1") != 0 {
		t.Error("expected R1 drained")
	}
	if o.Pending("R2") != 1 {
		t.Error("expected R2 untouched")
	}
}

func TestOutbox_FullQueueRejects(t *testing.T) {
	drops := &dropCounter{}
	o := hardware.NewOutbox(2, drops)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := o.SendFeedback(ctx, "R1", types.DefaultSuccessFeedback()); !ok || err != nil {
			t.Fatalf("send %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := o.SendFeedback(ctx, "R1", types.DefaultSuccessFeedback())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected send to be rejected on a full queue")
	}
	if drops.n != 1 {
		t.Errorf("expected 1 drop counted, got %d", drops.n)
	}
}

func TestOutbox_DrainBatch(t *testing.T) {
	o := hardware.NewOutbox(8, nil)
	for i := 0; i < 5; i++ {
		_, _ = o.SendFeedback(context.Background(), "R1", types.ReaderFeedback{Type: types.FeedbackCustom, BeepCount: i})
	}

	first := o.Drain("R1", 2)
	if len(first) != 2 || first[0].Feedback.BeepCount != 0 || first[1].Feedback.BeepCount != 1 {
		t.Fatalf("unexpected first batch %+v", first)
	}
	rest := o.Drain("R1", 0)
	if len(rest) != 3 || rest[0].Feedback.BeepCount != 2 {
		t.Fatalf("unexpected remainder %+v", rest)
	}
	if o.Drain("R1", 0) != nil {
		t.Error("expected nil from an empty queue")
	}
	if o.Drain("unknown", 0) != nil {
		t.Error("expected nil for an unknown reader")
	}
}

func TestOutbox_RejectsBlankReaderAndCancelledContext(t *testing.T) {
	o := hardware.NewOutbox(0, nil)

	if _, err := o.SendFeedback(context.Background(), "  ", types.DefaultSuccessFeedback()); !errors.Is(err, hardware.ErrNoReader) {
		t.Errorf("expected ErrNoReader, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok, err := o.SendFeedback(ctx, "R1", types.DefaultSuccessFeedback()); ok || !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got ok=%v err=%v", ok, err)
	}
}

func TestOutbox_ConcurrentSenders(t *testing.T) {
	o := hardware.NewOutbox(hardware.DefaultQueueLen, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.SendFeedback(context.Background(), "R1", types.DefaultSuccessFeedback())
		}()
	}
	wg.Wait()

	if n := o.Pending("R1"); n != hardware.DefaultQueueLen {
		t.Errorf("expected queue capped at %d, got %d", hardware.DefaultQueueLen, n)
	}
}
