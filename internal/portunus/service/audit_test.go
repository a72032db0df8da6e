package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ── Card auditing ────────────────────────────────────────────────────────────

func TestCardAuditor_PersistEvent_HashesCardNumber(t *testing.T) {
	es := memory.NewAccessEventStore()
	a := service.NewCardAuditor(es)
	occurred := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	err := a.PersistEvent(context.Background(),
		types.CardReadEvent{ReaderID: "R1", CardNumber: "12345678", BitLength: 26, Timestamp: occurred},
		types.CardDecision{Success: true, Message: service.MsgCardApproved, Summary: `{"passed":["A"],"failed":[],"results":[]}`},
	)
	if err != nil {
		t.Fatalf("PersistEvent: %v", err)
	}

	events := es.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	want := sha256.Sum256([]byte("12345678"))
	if string(ev.CredentialHash) != string(want[:]) {
		t.Error("expected SHA-256 of the card number")
	}
	if ev.Kind != store.EventKindCard || !ev.Granted || ev.Reason != service.MsgCardApproved {
		t.Errorf("unexpected record %+v", ev)
	}
	if ev.BitLength != 26 || !ev.OccurredAt.Equal(occurred) {
		t.Errorf("unexpected bit length / occurred at: %+v", ev)
	}
	if string(ev.PluginResults) != `{"passed":["A"],"failed":[],"results":[]}` {
		t.Errorf("unexpected plugin results %s", ev.PluginResults)
	}
	if ev.Error {
		t.Error("expected error=false")
	}
}

func TestCardAuditor_PersistEventError(t *testing.T) {
	es := memory.NewAccessEventStore()
	a := service.NewCardAuditor(es)

	if err := a.PersistEventError(context.Background(),
		types.CardReadEvent{ReaderID: "R1", CardNumber: "1"}, service.MsgCardFailed); err != nil {
		t.Fatalf("PersistEventError: %v", err)
	}

	ev := es.Events()[0]
	if ev.Granted || !ev.Error || ev.Reason != service.MsgCardFailed {
		t.Errorf("unexpected error record %+v", ev)
	}
	if ev.PluginResults != nil {
		t.Error("expected no plugin results on error record")
	}
}

// ── PIN auditing ─────────────────────────────────────────────────────────────

func TestPinAuditor_PersistEvent(t *testing.T) {
	es := memory.NewAccessEventStore()
	a := service.NewPinAuditor(es)

	dec := types.PinDecision{
		Success: true,
		Message: service.MsgPinApproved,
		PluginResults: map[string]types.PluginResult{
			"Allowlist": {PluginID: "a", PluginName: "Allowlist", Success: true},
		},
	}
	err := a.PersistEvent(context.Background(),
		types.PinReadEvent{ReaderID: "R2", Pin: "1234", CompletionReason: types.CompletionPoundKey},
		dec,
	)
	if err != nil {
		t.Fatalf("PersistEvent: %v", err)
	}

	ev := es.Events()[0]
	if ev.Kind != store.EventKindPin || ev.CompletionReason != "pound_key" {
		t.Errorf("unexpected record %+v", ev)
	}
	want := sha256.Sum256([]byte("1234"))
	if string(ev.CredentialHash) != string(want[:]) {
		t.Error("expected SHA-256 of the PIN")
	}

	var results map[string]types.PluginResult
	if err := json.Unmarshal(ev.PluginResults, &results); err != nil {
		t.Fatalf("plugin results not JSON: %v", err)
	}
	if !results["Allowlist"].Success {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestPinAuditor_EmptyPinHasNoHash(t *testing.T) {
	es := memory.NewAccessEventStore()
	a := service.NewPinAuditor(es)

	_ = a.PersistEventError(context.Background(),
		types.PinReadEvent{ReaderID: "R2", CompletionReason: types.CompletionTimeout}, service.MsgPinDenied)

	if ev := es.Events()[0]; ev.CredentialHash != nil {
		t.Error("expected nil hash for an empty PIN")
	}
}
