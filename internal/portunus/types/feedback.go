package types

import (
	"fmt"
	"time"
)

type FeedbackType string

const (
	FeedbackSuccess FeedbackType = "success"
	FeedbackFailure FeedbackType = "failure"
	FeedbackNone    FeedbackType = "none"
	FeedbackCustom  FeedbackType = "custom"
)

func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackSuccess, FeedbackFailure, FeedbackNone, FeedbackCustom:
		return true
	}
	return false
}

// ReaderFeedback instructs reader hardware how to respond to a decision.
type ReaderFeedback struct {
	Type           FeedbackType  `json:"type"`
	LEDColor       string        `json:"led_color,omitempty"`
	LEDDuration    time.Duration `json:"led_duration"`
	BeepCount      int           `json:"beep_count"`
	DisplayMessage string        `json:"display_message,omitempty"`
}

func (f ReaderFeedback) Validate() error {
	if !f.Type.Valid() {
		return fmt.Errorf("invalid feedback type %q", f.Type)
	}
	if f.BeepCount < 0 {
		return fmt.Errorf("beep count must not be negative")
	}
	if f.LEDDuration < 0 {
		return fmt.Errorf("led duration must not be negative")
	}
	return nil
}

// DefaultSuccessFeedback is used when no success feedback is configured.
func DefaultSuccessFeedback() ReaderFeedback {
	return ReaderFeedback{
		Type:           FeedbackSuccess,
		LEDColor:       "green",
		LEDDuration:    2 * time.Second,
		BeepCount:      1,
		DisplayMessage: "Access granted",
	}
}

// DefaultFailureFeedback is used when no failure feedback is configured.
func DefaultFailureFeedback() ReaderFeedback {
	return ReaderFeedback{
		Type:           FeedbackFailure,
		LEDColor:       "red",
		LEDDuration:    2 * time.Second,
		BeepCount:      3,
		DisplayMessage: "Access denied",
	}
}

// ProcessingFailedFeedback is sent when the decision itself could not be made.
func ProcessingFailedFeedback() ReaderFeedback {
	return ReaderFeedback{
		Type:           FeedbackFailure,
		LEDColor:       "red",
		LEDDuration:    2 * time.Second,
		BeepCount:      3,
		DisplayMessage: "Processing failed",
	}
}
