package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/plugin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubPlugin evaluates card and PIN reads with the configured funcs.
type stubPlugin struct {
	name string
	card func(types.CardReadEvent) (bool, error)
	pin  func(types.PinReadEvent) (bool, error)
}

func (p *stubPlugin) Name() string                                  { return p.name }
func (p *stubPlugin) Version() string                               { return "test" }
func (p *stubPlugin) Description() string                           { return "" }
func (p *stubPlugin) Init(context.Context, map[string]string) error { return nil }
func (p *stubPlugin) Shutdown(context.Context) error                { return nil }

func (p *stubPlugin) EvaluateCard(_ context.Context, ev types.CardReadEvent) (bool, error) {
	return p.card(ev)
}

func (p *stubPlugin) EvaluatePin(_ context.Context, ev types.PinReadEvent) (bool, error) {
	return p.pin(ev)
}

// lifecycleOnly implements Plugin without any evaluator.
type lifecycleOnly struct{ name string }

func (p *lifecycleOnly) Name() string                                  { return p.name }
func (p *lifecycleOnly) Version() string                               { return "test" }
func (p *lifecycleOnly) Description() string                           { return "" }
func (p *lifecycleOnly) Init(context.Context, map[string]string) error { return nil }
func (p *lifecycleOnly) Shutdown(context.Context) error                { return nil }

func verdict(ok bool) *stubPlugin {
	return &stubPlugin{
		card: func(types.CardReadEvent) (bool, error) { return ok, nil },
		pin:  func(types.PinReadEvent) (bool, error) { return ok, nil },
	}
}

func failing(msg string) *stubPlugin {
	return &stubPlugin{
		card: func(types.CardReadEvent) (bool, error) { return false, errors.New(msg) },
		pin:  func(types.PinReadEvent) (bool, error) { return false, errors.New(msg) },
	}
}

func panicking() *stubPlugin {
	return &stubPlugin{
		card: func(types.CardReadEvent) (bool, error) { panic("boom") },
		pin:  func(types.PinReadEvent) (bool, error) { panic("boom") },
	}
}

func instance(id, name string, p plugin.Plugin) plugin.Instance {
	if sp, ok := p.(*stubPlugin); ok {
		sp.name = name
	}
	return plugin.Instance{
		Metadata: types.PluginMetadata{ID: id, Name: name, Enabled: true},
		Plugin:   p,
	}
}

// staticPlugins is a PluginSource over a fixed set of instances.
type staticPlugins struct {
	instances []plugin.Instance
	err       error
}

func (s *staticPlugins) LoadPlugins(context.Context) ([]plugin.Instance, error) {
	return s.instances, s.err
}

// brokenMapping fails every lookup.
type brokenMapping struct{}

func (brokenMapping) GetPluginsForReader(context.Context, string) ([]string, error) {
	return nil, errors.New("mapping table unavailable")
}

func (brokenMapping) SetPluginsForReader(context.Context, string, []string) error {
	return errors.New("mapping table unavailable")
}

// panickingMapping panics during lookup.
type panickingMapping struct{ brokenMapping }

func (panickingMapping) GetPluginsForReader(context.Context, string) ([]string, error) {
	panic("mapping exploded")
}

func ctx() context.Context { return context.Background() }

func memoryReaders() *memory.ReaderStore {
	return memory.NewReaderStore(
		types.Reader{ID: "R1", Name: "Front Door", Enabled: true, SecurityMode: types.SecuritySecure},
		types.Reader{ID: "R2", Name: "Server Room", Enabled: false},
	)
}
