package types

import "time"

// CardReadEvent is a credential presentation reported by reader hardware.
// The card number is kept as a string because raw Wiegand/OSDP formats carry
// arbitrary bit lengths.
type CardReadEvent struct {
	ReaderID       string         `json:"reader_id"`
	CardNumber     string         `json:"card_number"`
	BitLength      int            `json:"bit_length"`
	ReaderName     string         `json:"reader_name,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

func (e CardReadEvent) Reader() string { return e.ReaderID }

// CompletionReason records why a PIN collection ended.
type CompletionReason string

const (
	CompletionTimeout   CompletionReason = "timeout"
	CompletionPoundKey  CompletionReason = "pound_key"
	CompletionMaxLength CompletionReason = "max_length"
)

// PinReadEvent is produced by the digit collector once a PIN entry completes.
type PinReadEvent struct {
	ReaderID         string           `json:"reader_id"`
	ReaderName       string           `json:"reader_name,omitempty"`
	Pin              string           `json:"-"`
	Timestamp        time.Time        `json:"timestamp"`
	CompletionReason CompletionReason `json:"completion_reason"`
	AdditionalData   map[string]any   `json:"additional_data,omitempty"`
}

func (e PinReadEvent) Reader() string { return e.ReaderID }

// DigitReceived echoes a single keypad press, accepted or not.
type DigitReceived struct {
	ReaderID  string    `json:"reader_id"`
	Digit     string    `json:"digit"`
	Accepted  bool      `json:"accepted"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
}

// ReaderStatusChanged reports a reader going online/offline, enriched with
// the configured reader attributes before it is published.
type ReaderStatusChanged struct {
	ReaderID     string       `json:"reader_id"`
	Online       bool         `json:"online"`
	ReaderName   string       `json:"reader_name"`
	Enabled      bool         `json:"enabled"`
	SecurityMode SecurityMode `json:"security_mode"`
	Timestamp    time.Time    `json:"timestamp"`
}

// CardProcessingCompleted is published after a card read has gone through
// every orchestration stage.
type CardProcessingCompleted struct {
	EventID              string         `json:"event_id"`
	Event                CardReadEvent  `json:"event"`
	Decision             CardDecision   `json:"decision"`
	Feedback             ReaderFeedback `json:"feedback"`
	PersistenceSucceeded bool           `json:"persistence_succeeded"`
	FeedbackDelivered    bool           `json:"feedback_delivered"`
	CompletedAt          time.Time      `json:"completed_at"`
}

// PinProcessingCompleted is the PIN counterpart of CardProcessingCompleted.
type PinProcessingCompleted struct {
	EventID              string         `json:"event_id"`
	Event                PinReadEvent   `json:"event"`
	Decision             PinDecision    `json:"decision"`
	Feedback             ReaderFeedback `json:"feedback"`
	PersistenceSucceeded bool           `json:"persistence_succeeded"`
	FeedbackDelivered    bool           `json:"feedback_delivered"`
	CompletedAt          time.Time      `json:"completed_at"`
}
