// Package app assembles the access pipeline from a set of stores.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/hardware"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/orchestrator"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/pin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/pipeline"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/plugin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type Stores struct {
	Readers  store.ReaderStore
	Mapping  store.ReaderPluginStore
	Feedback store.FeedbackStore
	Events   store.AccessEventStore
	Status   store.StatusStore
}

type Options struct {
	PluginDir     string
	PluginPattern string
	Catalog       *plugin.Catalog

	PinTimeout   time.Duration
	PinMaxLength int

	FeedbackQueueLen int
	BusBuffer        int

	Health  pipeline.HealthReporter
	Metrics *metrics.Metrics // nil disables metrics
	Logger  *slog.Logger
}

type App struct {
	Plugins   *plugin.Registry
	Bus       *eventbus.Bus
	Outbox    *hardware.Outbox
	Collector *pin.Collector
	Pipeline  *pipeline.Pipeline
	Readers   *service.ReaderDirectory
	Status    *service.StatusService
	Metrics   *metrics.Metrics
}

func New(st Stores, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics

	registry := plugin.NewRegistry(opts.PluginDir,
		plugin.WithCatalog(opts.Catalog),
		plugin.WithPattern(opts.PluginPattern),
		plugin.WithLogger(logger.With("component", "plugins")),
		plugin.WithLoadObserver(m.SetPluginsLoaded),
	)
	bus := eventbus.New(
		eventbus.WithBuffer(opts.BusBuffer),
		eventbus.WithLogger(logger.With("component", "bus")),
		eventbus.WithDropCounter(m),
	)
	outbox := hardware.NewOutbox(opts.FeedbackQueueLen, m)
	readers := service.NewReaderDirectory(st.Readers)
	feedback := service.NewFeedbackSettings(st.Feedback)

	card := orchestrator.New(orchestrator.Dependencies[types.CardReadEvent, types.CardDecision]{
		Kind:      string(store.EventKindCard),
		Decider:   service.NewCardDecisionService(registry, st.Mapping, logger),
		Persister: service.NewCardAuditor(st.Events),
		Feedback:  feedback,
		Sender:    outbox,
		Fail: func(msg string) types.CardDecision {
			return types.CardDecision{Success: false, Message: msg}
		},
		Logger:  logger,
		Metrics: m,
	})
	pinOrch := orchestrator.New(orchestrator.Dependencies[types.PinReadEvent, types.PinDecision]{
		Kind:      string(store.EventKindPin),
		Decider:   service.NewPinDecisionService(registry, st.Mapping, logger),
		Persister: service.NewPinAuditor(st.Events),
		Feedback:  feedback,
		Sender:    outbox,
		Fail: func(msg string) types.PinDecision {
			return types.PinDecision{Success: false, Message: msg}
		},
		Logger:  logger,
		Metrics: m,
	})

	pl := pipeline.New(pipeline.Dependencies{
		Card:    card,
		Pin:     pinOrch,
		Readers: readers,
		Bus:     bus,
		Health:  opts.Health,
		Metrics: m,
		Logger:  logger,
	})

	collector := pin.NewCollector(readers, pl.HandlePinComplete,
		pin.WithTimeout(opts.PinTimeout),
		pin.WithMaxLength(opts.PinMaxLength),
		pin.WithDigitHandler(pl.HandleDigit),
		pin.WithLogger(logger.With("component", "pin")),
	)

	return &App{
		Plugins:   registry,
		Bus:       bus,
		Outbox:    outbox,
		Collector: collector,
		Pipeline:  pl,
		Readers:   readers,
		Status:    service.NewStatusService(st.Status, pl, logger),
		Metrics:   m,
	}
}

// Close stops PIN collection, drains the bus and shuts down plugins.
func (a *App) Close(ctx context.Context) error {
	a.Collector.Close()
	a.Bus.Close()
	return a.Plugins.Close(ctx)
}
