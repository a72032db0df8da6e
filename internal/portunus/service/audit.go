package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// hashCredential returns the SHA-256 digest of a card number or PIN.  The
// plain credential never reaches the audit log.  Empty credentials hash to
// nil.
func hashCredential(credential string) []byte {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(credential))
	return sum[:]
}

// CardAuditor records card decisions in the access event log.
type CardAuditor struct {
	events store.AccessEventStore
	now    func() time.Time
}

func NewCardAuditor(es store.AccessEventStore) *CardAuditor {
	return &CardAuditor{events: es, now: time.Now}
}

func (a *CardAuditor) PersistEvent(ctx context.Context, ev types.CardReadEvent, dec types.CardDecision) error {
	rec := a.record(ev)
	rec.Granted = dec.Success
	rec.Reason = dec.Message
	if dec.Summary != "" {
		rec.PluginResults = []byte(dec.Summary)
	}
	return a.events.RecordEvent(ctx, rec)
}

// PersistEventError records a read that did not result in an approval.
func (a *CardAuditor) PersistEventError(ctx context.Context, ev types.CardReadEvent, message string) error {
	rec := a.record(ev)
	rec.Reason = message
	rec.Error = true
	return a.events.RecordEvent(ctx, rec)
}

func (a *CardAuditor) record(ev types.CardReadEvent) store.AccessEventRecord {
	return store.AccessEventRecord{
		ReaderID:       ev.ReaderID,
		Kind:           store.EventKindCard,
		CredentialHash: hashCredential(ev.CardNumber),
		BitLength:      ev.BitLength,
		OccurredAt:     ev.Timestamp,
		DecidedAt:      a.now().UTC(),
	}
}

// PinAuditor records PIN decisions in the access event log.
type PinAuditor struct {
	events store.AccessEventStore
	now    func() time.Time
}

func NewPinAuditor(es store.AccessEventStore) *PinAuditor {
	return &PinAuditor{events: es, now: time.Now}
}

func (a *PinAuditor) PersistEvent(ctx context.Context, ev types.PinReadEvent, dec types.PinDecision) error {
	rec := a.record(ev)
	rec.Granted = dec.Success
	rec.Reason = dec.Message
	if len(dec.PluginResults) > 0 {
		b, err := json.Marshal(dec.PluginResults)
		if err != nil {
			return err
		}
		rec.PluginResults = b
	}
	return a.events.RecordEvent(ctx, rec)
}

// PersistEventError records a PIN read that did not result in an approval.
func (a *PinAuditor) PersistEventError(ctx context.Context, ev types.PinReadEvent, message string) error {
	rec := a.record(ev)
	rec.Reason = message
	rec.Error = true
	return a.events.RecordEvent(ctx, rec)
}

func (a *PinAuditor) record(ev types.PinReadEvent) store.AccessEventRecord {
	return store.AccessEventRecord{
		ReaderID:         ev.ReaderID,
		Kind:             store.EventKindPin,
		CredentialHash:   hashCredential(ev.Pin),
		CompletionReason: string(ev.CompletionReason),
		OccurredAt:       ev.Timestamp,
		DecidedAt:        a.now().UTC(),
	}
}
