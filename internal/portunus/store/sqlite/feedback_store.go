package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type FeedbackStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewFeedbackStore(db *sql.DB, writer *dbpkg.Worker) *FeedbackStore {
	return &FeedbackStore{db: db, writer: writer}
}

func (s *FeedbackStore) GetSuccessFeedback(ctx context.Context) (types.ReaderFeedback, bool, error) {
	return s.get(ctx, store.OutcomeSuccess)
}

func (s *FeedbackStore) GetFailureFeedback(ctx context.Context) (types.ReaderFeedback, bool, error) {
	return s.get(ctx, store.OutcomeFailure)
}

func (s *FeedbackStore) get(ctx context.Context, outcome store.FeedbackOutcome) (types.ReaderFeedback, bool, error) {
	var (
		fb         types.ReaderFeedback
		fbType     string
		durationMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT feedback_type, led_color, led_duration_ms, beep_count, display_message
FROM feedback_settings
WHERE outcome = ?;
`, string(outcome)).Scan(&fbType, &fb.LEDColor, &durationMs, &fb.BeepCount, &fb.DisplayMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ReaderFeedback{}, false, nil
	}
	if err != nil {
		return types.ReaderFeedback{}, false, fmt.Errorf("get %s feedback: %w", outcome, err)
	}
	fb.Type = types.FeedbackType(fbType)
	fb.LEDDuration = time.Duration(durationMs) * time.Millisecond
	return fb, true, nil
}

func (s *FeedbackStore) SetFeedback(ctx context.Context, outcome store.FeedbackOutcome, fb types.ReaderFeedback) error {
	if err := fb.Validate(); err != nil {
		return err
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO feedback_settings(
  outcome, feedback_type, led_color, led_duration_ms, beep_count, display_message, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(outcome) DO UPDATE SET
  feedback_type   = excluded.feedback_type,
  led_color       = excluded.led_color,
  led_duration_ms = excluded.led_duration_ms,
  beep_count      = excluded.beep_count,
  display_message = excluded.display_message,
  updated_at_ms   = excluded.updated_at_ms;
`, string(outcome), string(fb.Type), fb.LEDColor, fb.LEDDuration.Milliseconds(),
			fb.BeepCount, fb.DisplayMessage, nowMs); err != nil {
			return fmt.Errorf("SetFeedback %s: %w", outcome, err)
		}
		return nil
	})
}

var _ store.FeedbackStore = (*FeedbackStore)(nil)
