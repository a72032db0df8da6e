// Package pipeline is the entry point for hardware events.  Card and PIN
// reads go through their orchestrator and the outcome is published on the
// event bus; status changes are enriched from reader configuration before
// they are published.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const lookupTimeout = 2 * time.Second

type CardProcessor interface {
	Process(ctx context.Context, ev types.CardReadEvent) types.EventProcessingResult[types.CardDecision]
}

type PinProcessor interface {
	Process(ctx context.Context, ev types.PinReadEvent) types.EventProcessingResult[types.PinDecision]
}

type Publisher interface {
	Publish(ctx context.Context, ev any) error
}

type ReaderLookup interface {
	GetReader(ctx context.Context, readerID string) (types.Reader, error)
}

// HealthReporter receives the serving state of each reader.
type HealthReporter interface {
	SetReaderServing(readerID string, serving bool)
}

type PinRecorder interface {
	PinCompleted(reason string)
}

type Dependencies struct {
	Card    CardProcessor
	Pin     PinProcessor
	Readers ReaderLookup
	Bus     Publisher
	Health  HealthReporter
	Metrics PinRecorder
	Logger  *slog.Logger
}

type Pipeline struct {
	card    CardProcessor
	pin     PinProcessor
	readers ReaderLookup
	bus     Publisher
	health  HealthReporter
	metrics PinRecorder
	log     *slog.Logger
	now     func() time.Time
	newID   func() string
}

func New(d Dependencies) *Pipeline {
	p := &Pipeline{
		card:    d.Card,
		pin:     d.Pin,
		readers: d.Readers,
		bus:     d.Bus,
		health:  d.Health,
		metrics: d.Metrics,
		log:     d.Logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// ProcessCardRead decides a card read and publishes its completion.  A read
// that has started always runs to the end; the caller giving up does not
// cancel persistence, feedback or publication.
func (p *Pipeline) ProcessCardRead(ctx context.Context, ev types.CardReadEvent) types.CardProcessingCompleted {
	ctx = context.WithoutCancel(ctx)
	res := p.card.Process(ctx, ev)
	done := types.CardProcessingCompleted{
		EventID:              p.newID(),
		Event:                ev,
		Decision:             res.Decision,
		Feedback:             res.Feedback,
		PersistenceSucceeded: res.PersistenceSucceeded,
		FeedbackDelivered:    res.FeedbackDelivered,
		CompletedAt:          p.now().UTC(),
	}
	p.publish(ctx, ev.ReaderID, done)
	return done
}

func (p *Pipeline) ProcessPinRead(ctx context.Context, ev types.PinReadEvent) types.PinProcessingCompleted {
	ctx = context.WithoutCancel(ctx)
	if p.metrics != nil {
		p.metrics.PinCompleted(string(ev.CompletionReason))
	}
	res := p.pin.Process(ctx, ev)
	done := types.PinProcessingCompleted{
		EventID:              p.newID(),
		Event:                ev,
		Decision:             res.Decision,
		Feedback:             res.Feedback,
		PersistenceSucceeded: res.PersistenceSucceeded,
		FeedbackDelivered:    res.FeedbackDelivered,
		CompletedAt:          p.now().UTC(),
	}
	p.publish(ctx, ev.ReaderID, done)
	return done
}

// HandlePinComplete adapts ProcessPinRead to the PIN collector's completion
// callback, which runs outside any request.
func (p *Pipeline) HandlePinComplete(ev types.PinReadEvent) {
	p.ProcessPinRead(context.Background(), ev)
}

// HandleDigit publishes a keypad echo.
func (p *Pipeline) HandleDigit(ev types.DigitReceived) {
	p.publish(context.Background(), ev.ReaderID, ev)
}

// ProcessStatusChange fills in the reader's configured name, enabled flag
// and security mode, then publishes the event.  A reader that cannot be
// looked up is reported as disabled and clear-text.
func (p *Pipeline) ProcessStatusChange(ctx context.Context, ev types.ReaderStatusChanged) types.ReaderStatusChanged {
	ctx = context.WithoutCancel(ctx)
	ev.ReaderName = ""
	ev.Enabled = false
	ev.SecurityMode = types.SecurityClearText

	if r, err := p.lookupReader(ctx, ev.ReaderID); err != nil {
		p.log.Warn("reader lookup failed for status change", "reader_id", ev.ReaderID, "error", err)
	} else {
		ev.ReaderName = r.Name
		ev.Enabled = r.Enabled
		if r.SecurityMode != "" {
			ev.SecurityMode = r.SecurityMode
		}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now().UTC()
	}

	if p.health != nil {
		p.health.SetReaderServing(ev.ReaderID, ev.Online && ev.Enabled)
	}
	p.publish(ctx, ev.ReaderID, ev)
	return ev
}

func (p *Pipeline) lookupReader(ctx context.Context, readerID string) (r types.Reader, err error) {
	if p.readers == nil {
		return types.Reader{}, errors.New("no reader configuration")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reader lookup panicked: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	return p.readers.GetReader(ctx, readerID)
}

func (p *Pipeline) publish(ctx context.Context, readerID string, ev any) {
	if p.bus == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("event publish panicked", "reader_id", readerID, "event", fmt.Sprintf("%T", ev), "panic", rec)
		}
	}()
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.log.Warn("event publish failed", "reader_id", readerID, "event", fmt.Sprintf("%T", ev), "error", err)
	}
}
