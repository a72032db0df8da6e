package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/plugin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const (
	MsgCardApproved      = "Card read approved"
	MsgCardFailed        = "Card read processing failed"
	MsgCardNoPlugins     = "Card read denied: no plugins configured for reader"
	MsgCardInternalError = "Internal error while processing card read"
	MsgPinApproved       = "PIN read approved"
	MsgPinDenied         = "PIN read denied by all plugins"
	MsgPinNoPlugins      = "No plugins configured for reader"
	MsgPinInternalError  = "Internal error while processing PIN read"
	msgMissingCapability = "plugin does not evaluate %s reads"
	msgPluginPanicked    = "plugin panicked: %v"
)

// PluginSource supplies the currently loaded plugin instances.
type PluginSource interface {
	LoadPlugins(ctx context.Context) ([]plugin.Instance, error)
}

// resolver turns a reader's plugin mapping into loaded instances.
type resolver struct {
	plugins PluginSource
	mapping store.ReaderPluginStore
	log     *slog.Logger
	now     func() time.Time
}

// resolve returns the loaded plugins mapped to readerID, in mapping order.
// Mapped IDs that are not loaded are skipped.
func (r resolver) resolve(ctx context.Context, readerID string) ([]plugin.Instance, error) {
	ids, err := r.mapping.GetPluginsForReader(ctx, readerID)
	if err != nil {
		return nil, fmt.Errorf("plugins for reader %s: %w", readerID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	loaded, err := r.plugins.LoadPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	byID := make(map[string]plugin.Instance, len(loaded))
	for _, inst := range loaded {
		byID[inst.Metadata.ID] = inst
	}

	out := make([]plugin.Instance, 0, len(ids))
	for _, id := range ids {
		inst, ok := byID[id]
		if !ok {
			r.log.Debug("mapped plugin not loaded", "reader_id", readerID, "plugin_id", id)
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// invoke runs one plugin evaluation and always produces a result.
func (r resolver) invoke(readerID string, inst plugin.Instance, eval func() (bool, error)) (res types.PluginResult) {
	res = types.PluginResult{
		PluginID:   inst.Metadata.ID,
		PluginName: inst.Metadata.Name,
	}
	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.ErrorMessage = fmt.Sprintf(msgPluginPanicked, rec)
			r.log.Error("plugin panicked", "reader_id", readerID, "plugin_id", inst.Metadata.ID, "panic", rec)
		}
		res.ProcessedAt = r.now().UTC()
	}()

	ok, err := eval()
	if err != nil {
		res.ErrorMessage = err.Error()
		r.log.Warn("plugin evaluation failed", "reader_id", readerID, "plugin_id", inst.Metadata.ID, "error", err)
		return res
	}
	res.Success = ok
	return res
}

func (r resolver) missing(inst plugin.Instance, kind string) types.PluginResult {
	return types.PluginResult{
		PluginID:     inst.Metadata.ID,
		PluginName:   inst.Metadata.Name,
		ErrorMessage: fmt.Sprintf(msgMissingCapability, kind),
		ProcessedAt:  r.now().UTC(),
	}
}

// ── Card ───────────────────────────────────────────────────────────────────

// CardDecisionService approves a card read only when every plugin mapped to
// the reader approves it.
type CardDecisionService struct {
	resolver
}

func NewCardDecisionService(plugins PluginSource, mapping store.ReaderPluginStore, logger *slog.Logger) *CardDecisionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CardDecisionService{resolver{plugins: plugins, mapping: mapping, log: logger, now: time.Now}}
}

type cardSummary struct {
	Passed  []string             `json:"passed"`
	Failed  []string             `json:"failed"`
	Results []types.PluginResult `json:"results"`
}

// Decide never returns an error; failures are reported in the decision.
func (s *CardDecisionService) Decide(ctx context.Context, ev types.CardReadEvent) (dec types.CardDecision, _ error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("card decision panicked", "reader_id", ev.ReaderID, "panic", rec)
			dec = types.CardDecision{Success: false, Message: MsgCardInternalError}
		}
	}()

	instances, err := s.resolve(ctx, ev.ReaderID)
	if err != nil {
		s.log.Error("card decision failed", "reader_id", ev.ReaderID, "error", err)
		return types.CardDecision{Success: false, Message: MsgCardInternalError}, nil
	}

	summary := cardSummary{Passed: []string{}, Failed: []string{}, Results: []types.PluginResult{}}
	for _, inst := range instances {
		var res types.PluginResult
		if ce, ok := inst.Plugin.(plugin.CardEvaluator); ok {
			res = s.invoke(ev.ReaderID, inst, func() (bool, error) { return ce.EvaluateCard(ctx, ev) })
		} else {
			res = s.missing(inst, "card")
		}
		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Passed = append(summary.Passed, res.PluginName)
		} else {
			summary.Failed = append(summary.Failed, res.PluginName)
		}
	}

	dec = types.CardDecision{PluginResults: summary.Results}
	switch {
	case len(summary.Results) == 0:
		dec.Message = MsgCardNoPlugins
	case len(summary.Failed) == 0:
		dec.Success = true
		dec.Message = MsgCardApproved
	default:
		dec.Message = MsgCardFailed
	}

	if b, err := json.Marshal(summary); err == nil {
		dec.Summary = string(b)
	}
	return dec, nil
}

// ── PIN ────────────────────────────────────────────────────────────────────

// PinDecisionService approves a PIN read when any plugin mapped to the
// reader approves it.
type PinDecisionService struct {
	resolver
}

func NewPinDecisionService(plugins PluginSource, mapping store.ReaderPluginStore, logger *slog.Logger) *PinDecisionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PinDecisionService{resolver{plugins: plugins, mapping: mapping, log: logger, now: time.Now}}
}

// Decide never returns an error; failures are reported in the decision.
func (s *PinDecisionService) Decide(ctx context.Context, ev types.PinReadEvent) (dec types.PinDecision, _ error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("pin decision panicked", "reader_id", ev.ReaderID, "panic", rec)
			dec = types.PinDecision{Success: false, Message: MsgPinInternalError}
		}
	}()

	instances, err := s.resolve(ctx, ev.ReaderID)
	if err != nil {
		s.log.Error("pin decision failed", "reader_id", ev.ReaderID, "error", err)
		return types.PinDecision{Success: false, Message: MsgPinInternalError}, nil
	}
	if len(instances) == 0 {
		return types.PinDecision{Success: false, Message: MsgPinNoPlugins}, nil
	}

	dec = types.PinDecision{PluginResults: make(map[string]types.PluginResult, len(instances))}
	for _, inst := range instances {
		var res types.PluginResult
		if pe, ok := inst.Plugin.(plugin.PinEvaluator); ok {
			res = s.invoke(ev.ReaderID, inst, func() (bool, error) { return pe.EvaluatePin(ctx, ev) })
		} else {
			res = s.missing(inst, "PIN")
		}
		dec.PluginResults[resultKey(dec.PluginResults, res)] = res
		if res.Success {
			dec.Success = true
		}
	}

	if dec.Success {
		dec.Message = MsgPinApproved
	} else {
		dec.Message = MsgPinDenied
	}
	return dec, nil
}

// resultKey keys by plugin name, qualifying with the ID when two plugins
// share a name.
func resultKey(m map[string]types.PluginResult, res types.PluginResult) string {
	key := strings.TrimSpace(res.PluginName)
	if key == "" {
		key = res.PluginID
	}
	if _, dup := m[key]; dup {
		key = key + " [" + res.PluginID + "]"
	}
	return key
}
