package types

import "time"

// PluginResult is one plugin's verdict on one event. A result exists for
// every invoked plugin, including ones that failed.
type PluginResult struct {
	PluginID     string    `json:"plugin_id"`
	PluginName   string    `json:"plugin_name"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// CardDecision is the aggregated verdict for a card read. Summary holds the
// JSON encoded pass/fail breakdown kept for the audit trail.
type CardDecision struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Summary       string         `json:"summary,omitempty"`
	PluginResults []PluginResult `json:"plugin_results,omitempty"`
}

func (d CardDecision) Succeeded() bool { return d.Success }
func (d CardDecision) Reason() string  { return d.Message }

// PinDecision is the aggregated verdict for a PIN read, keyed by plugin name.
type PinDecision struct {
	Success       bool                    `json:"success"`
	Message       string                  `json:"message"`
	PluginResults map[string]PluginResult `json:"plugin_results,omitempty"`
}

func (d PinDecision) Succeeded() bool { return d.Success }
func (d PinDecision) Reason() string  { return d.Message }

// EventProcessingResult is what the orchestrator hands back for every event.
// All fields are always populated; stage failures show up in the two flags.
type EventProcessingResult[T any] struct {
	Decision             T              `json:"decision"`
	Feedback             ReaderFeedback `json:"feedback"`
	PersistenceSucceeded bool           `json:"persistence_succeeded"`
	FeedbackDelivered    bool           `json:"feedback_delivered"`
}
