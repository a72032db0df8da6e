package store

import (
	"context"
	"time"
)

type EventKind string

const (
	EventKindCard EventKind = "card"
	EventKindPin  EventKind = "pin"
)

// AccessEventRecord captures a single access decision for the audit log.
// The presented credential is only ever stored as a SHA-256 digest.
type AccessEventRecord struct {
	ReaderID         string
	Kind             EventKind
	CredentialHash   []byte // SHA-256 of card number or PIN
	BitLength        int
	CompletionReason string // PIN reads only
	OccurredAt       time.Time
	Granted          bool
	Reason           string
	PluginResults    []byte // JSON; nil for error records
	Error            bool
	DecidedAt        time.Time
}

// AccessEventStore persists access decisions as an append-only audit log.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, rec AccessEventRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
