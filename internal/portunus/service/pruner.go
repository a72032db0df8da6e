package service

import (
	"context"
	"log/slog"
	"time"
)

// PruneTarget is a history store that can drop rows older than a cutoff.
type PruneTarget interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner periodically deletes access and status history older than a
// configurable retention period.  It runs as a background goroutine and
// is safe to stop via its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type Pruner struct {
	targets   map[string]PruneTarget
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs.  Defaults to 6.
	IntervalHours int
}

// NewPruner creates a pruner over the named targets but does not start it.
func NewPruner(targets map[string]PruneTarget, cfg PrunerConfig, logger *slog.Logger) *Pruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pruner{
		targets:   targets,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("history pruner disabled", "retention_days", 0)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("history pruner started",
		"retention_days", int(p.retention.Hours()/24),
		"interval_hours", int(p.interval.Hours()))
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	p.PruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

// PruneOnce prunes every target once and returns the rows deleted per
// target.  A failing target is logged and does not stop the others.
func (p *Pruner) PruneOnce(ctx context.Context) map[string]int64 {
	cutoff := time.Now().UTC().Add(-p.retention)
	out := make(map[string]int64, len(p.targets))
	for name, t := range p.targets {
		deleted, err := t.PruneOlderThan(ctx, cutoff)
		if err != nil {
			p.logger.Error("history prune failed", "target", name, "error", err)
			continue
		}
		out[name] = deleted
		if deleted > 0 {
			p.logger.Info("history pruned", "target", name, "deleted", deleted,
				"cutoff", cutoff.Format(time.RFC3339))
		}
	}
	return out
}
