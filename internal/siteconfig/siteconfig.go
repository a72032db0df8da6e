// Package siteconfig loads the site description (readers, their plugin
// assignments and reader feedback) from a YAML file and seeds the stores
// with it.
package siteconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type Site struct {
	Readers  []Reader `mapstructure:"readers"`
	Feedback Feedback `mapstructure:"feedback"`
}

type Reader struct {
	ID           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	Enabled      *bool    `mapstructure:"enabled"` // default true
	SecurityMode string   `mapstructure:"security_mode"`
	Plugins      []string `mapstructure:"plugins"`
}

type Feedback struct {
	Success *FeedbackEntry `mapstructure:"success"`
	Failure *FeedbackEntry `mapstructure:"failure"`
}

type FeedbackEntry struct {
	Type           string        `mapstructure:"type"`
	LEDColor       string        `mapstructure:"led_color"`
	LEDDuration    time.Duration `mapstructure:"led_duration"`
	BeepCount      int           `mapstructure:"beep_count"`
	DisplayMessage string        `mapstructure:"display_message"`
}

func (e FeedbackEntry) ReaderFeedback() types.ReaderFeedback {
	return types.ReaderFeedback{
		Type:           types.FeedbackType(strings.ToLower(strings.TrimSpace(e.Type))),
		LEDColor:       e.LEDColor,
		LEDDuration:    e.LEDDuration,
		BeepCount:      e.BeepCount,
		DisplayMessage: e.DisplayMessage,
	}
}

func (r Reader) Reader() types.Reader {
	enabled := r.Enabled == nil || *r.Enabled
	mode := types.SecurityMode(strings.ToLower(strings.TrimSpace(r.SecurityMode)))
	if mode == "" {
		mode = types.SecurityClearText
	}
	return types.Reader{
		ID:           strings.TrimSpace(r.ID),
		Name:         strings.TrimSpace(r.Name),
		Enabled:      enabled,
		SecurityMode: mode,
	}
}

// Load reads and validates the site file at path.
func Load(path string) (Site, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Site{}, fmt.Errorf("read site config %s: %w", path, err)
	}

	var s Site
	if err := v.Unmarshal(&s); err != nil {
		return Site{}, fmt.Errorf("decode site config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Site{}, fmt.Errorf("site config %s: %w", path, err)
	}
	return s, nil
}

// Validate reports every problem in the site description at once.
func (s Site) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(s.Readers))
	for i, r := range s.Readers {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("readers[%d]: id is required", i))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("readers[%d]: duplicate id %q", i, id))
		}
		seen[id] = true

		switch r.Reader().SecurityMode {
		case types.SecurityClearText, types.SecuritySecure:
		default:
			errs = append(errs, fmt.Errorf("reader %q: unknown security_mode %q", id, r.SecurityMode))
		}
		for j, p := range r.Plugins {
			if strings.TrimSpace(p) == "" {
				errs = append(errs, fmt.Errorf("reader %q: plugins[%d] is empty", id, j))
			}
		}
	}

	if s.Feedback.Success != nil {
		if err := s.Feedback.Success.ReaderFeedback().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("feedback.success: %w", err))
		}
	}
	if s.Feedback.Failure != nil {
		if err := s.Feedback.Failure.ReaderFeedback().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("feedback.failure: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stores is what Apply writes to.
type Stores struct {
	Readers  store.ReaderStore
	Mapping  store.ReaderPluginStore
	Feedback store.FeedbackStore
}

// Apply upserts every reader, replaces each listed reader's plugin
// assignment and stores any configured feedback.
func (s Site) Apply(ctx context.Context, st Stores) error {
	for _, r := range s.Readers {
		reader := r.Reader()
		if err := st.Readers.UpsertReader(ctx, reader); err != nil {
			return fmt.Errorf("upsert reader %s: %w", reader.ID, err)
		}
		ids := make([]string, 0, len(r.Plugins))
		for _, p := range r.Plugins {
			ids = append(ids, strings.TrimSpace(p))
		}
		if err := st.Mapping.SetPluginsForReader(ctx, reader.ID, ids); err != nil {
			return fmt.Errorf("set plugins for %s: %w", reader.ID, err)
		}
	}

	if s.Feedback.Success != nil {
		if err := st.Feedback.SetFeedback(ctx, store.OutcomeSuccess, s.Feedback.Success.ReaderFeedback()); err != nil {
			return fmt.Errorf("set success feedback: %w", err)
		}
	}
	if s.Feedback.Failure != nil {
		if err := st.Feedback.SetFeedback(ctx, store.OutcomeFailure, s.Feedback.Failure.ReaderFeedback()); err != nil {
			return fmt.Errorf("set failure feedback: %w", err)
		}
	}
	return nil
}
