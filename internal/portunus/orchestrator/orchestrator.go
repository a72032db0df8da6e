// Package orchestrator sequences the stages every access event goes
// through: decide, select feedback, persist, deliver.  Only the decision
// stage influences what the reader is told; persistence and delivery
// failures are reported as flags on the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const (
	StageDecide         = "decide"
	StageSelectFeedback = "select_feedback"
	StagePersist        = "persist"
	StageDeliver        = "deliver"

	// MsgProcessingFailed is the reason recorded when no decision could be
	// made at all.
	MsgProcessingFailed = "Processing failed"

	tracerName = "github.com/BrandonDHaskell/Portunus/controller/orchestrator"
)

var errFeedbackRejected = errors.New("reader feedback rejected")

type Event interface {
	Reader() string
}

type Decision interface {
	Succeeded() bool
	Reason() string
}

type Decider[E Event, R Decision] interface {
	Decide(ctx context.Context, ev E) (R, error)
}

type Persister[E Event, R Decision] interface {
	PersistEvent(ctx context.Context, ev E, dec R) error
	PersistEventError(ctx context.Context, ev E, message string) error
}

type FeedbackSource interface {
	GetSuccessFeedback(ctx context.Context) (types.ReaderFeedback, error)
	GetFailureFeedback(ctx context.Context) (types.ReaderFeedback, error)
}

// FeedbackSender hands feedback to reader hardware.  A false return without
// an error means the hardware side declined it.
type FeedbackSender interface {
	SendFeedback(ctx context.Context, readerID string, fb types.ReaderFeedback) (bool, error)
}

// StageRecorder receives per-stage timings and decision outcomes.
type StageRecorder interface {
	ObserveDecision(kind string, success bool)
	ObserveStage(kind, stage string, d time.Duration, failed bool)
}

type Dependencies[E Event, R Decision] struct {
	// Kind labels logs, spans and metrics, e.g. "card" or "pin".
	Kind      string
	Decider   Decider[E, R]
	Persister Persister[E, R]
	Feedback  FeedbackSource
	Sender    FeedbackSender

	// Fail builds the decision reported when the decider errors or panics.
	Fail func(message string) R

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics StageRecorder
}

type Orchestrator[E Event, R Decision] struct {
	kind      string
	decider   Decider[E, R]
	persister Persister[E, R]
	feedback  FeedbackSource
	sender    FeedbackSender
	fail      func(string) R
	log       *slog.Logger
	tracer    trace.Tracer
	metrics   StageRecorder
	now       func() time.Time
}

func New[E Event, R Decision](d Dependencies[E, R]) *Orchestrator[E, R] {
	o := &Orchestrator[E, R]{
		kind:      d.Kind,
		decider:   d.Decider,
		persister: d.Persister,
		feedback:  d.Feedback,
		sender:    d.Sender,
		fail:      d.Fail,
		log:       d.Logger,
		tracer:    d.Tracer,
		metrics:   d.Metrics,
		now:       time.Now,
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.metrics == nil {
		o.metrics = noopRecorder{}
	}
	if o.fail == nil {
		o.fail = func(string) R { var zero R; return zero }
	}
	return o
}

// Process runs ev through every stage and always returns a complete result.
func (o *Orchestrator[E, R]) Process(ctx context.Context, ev E) types.EventProcessingResult[R] {
	readerID := ev.Reader()
	ctx, span := o.tracer.Start(ctx, "orchestrator.process", trace.WithAttributes(
		attribute.String("portunus.kind", o.kind),
		attribute.String("portunus.reader_id", readerID),
	))
	defer span.End()

	dec, decided := o.decide(ctx, ev)

	var fb types.ReaderFeedback
	if decided {
		fb = o.selectFeedback(ctx, readerID, dec.Succeeded())
	} else {
		fb = types.ProcessingFailedFeedback()
	}

	res := types.EventProcessingResult[R]{
		Decision:             dec,
		Feedback:             fb,
		PersistenceSucceeded: o.persist(ctx, ev, dec),
		FeedbackDelivered:    o.deliver(ctx, readerID, fb),
	}

	span.SetAttributes(
		attribute.Bool("portunus.granted", dec.Succeeded()),
		attribute.Bool("portunus.persisted", res.PersistenceSucceeded),
		attribute.Bool("portunus.delivered", res.FeedbackDelivered),
	)
	o.metrics.ObserveDecision(o.kind, dec.Succeeded())
	return res
}

func (o *Orchestrator[E, R]) decide(ctx context.Context, ev E) (dec R, decided bool) {
	err := o.stage(ctx, StageDecide, func(ctx context.Context) error {
		var err error
		dec, err = o.decider.Decide(ctx, ev)
		return err
	})
	if err != nil {
		o.log.Error("access decision failed", "kind", o.kind, "reader_id", ev.Reader(), "error", err)
		return o.fail(MsgProcessingFailed), false
	}
	return dec, true
}

func (o *Orchestrator[E, R]) selectFeedback(ctx context.Context, readerID string, success bool) types.ReaderFeedback {
	var fb types.ReaderFeedback
	err := o.stage(ctx, StageSelectFeedback, func(ctx context.Context) error {
		if o.feedback == nil {
			fb = defaultFeedback(success)
			return nil
		}
		var err error
		if success {
			fb, err = o.feedback.GetSuccessFeedback(ctx)
		} else {
			fb, err = o.feedback.GetFailureFeedback(ctx)
		}
		return err
	})
	if err != nil {
		o.log.Warn("feedback lookup failed, using defaults", "kind", o.kind, "reader_id", readerID, "error", err)
		return defaultFeedback(success)
	}
	return fb
}

// persist stores the full decision for approvals and an error record for
// everything else.  Either write succeeding counts as persisted.
func (o *Orchestrator[E, R]) persist(ctx context.Context, ev E, dec R) bool {
	err := o.stage(ctx, StagePersist, func(ctx context.Context) error {
		if dec.Succeeded() {
			return o.persister.PersistEvent(ctx, ev, dec)
		}
		return o.persister.PersistEventError(ctx, ev, dec.Reason())
	})
	if err != nil {
		o.log.Error("persist access event failed", "kind", o.kind, "reader_id", ev.Reader(), "error", err)
		return false
	}
	return true
}

func (o *Orchestrator[E, R]) deliver(ctx context.Context, readerID string, fb types.ReaderFeedback) bool {
	err := o.stage(ctx, StageDeliver, func(ctx context.Context) error {
		ok, err := o.sender.SendFeedback(ctx, readerID, fb)
		if err != nil {
			return err
		}
		if !ok {
			return errFeedbackRejected
		}
		return nil
	})
	if err != nil {
		o.log.Warn("feedback delivery failed", "kind", o.kind, "reader_id", readerID, "error", err)
		return false
	}
	return true
}

// stage runs fn inside its own span, converting a panic into an error.
func (o *Orchestrator[E, R]) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+name)
	start := o.now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", name, rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		o.metrics.ObserveStage(o.kind, name, o.now().Sub(start), err != nil)
		span.End()
	}()
	return fn(ctx)
}

func defaultFeedback(success bool) types.ReaderFeedback {
	if success {
		return types.DefaultSuccessFeedback()
	}
	return types.DefaultFailureFeedback()
}

type noopRecorder struct{}

func (noopRecorder) ObserveDecision(string, bool)                     {}
func (noopRecorder) ObserveStage(string, string, time.Duration, bool) {}
