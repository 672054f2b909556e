package notes

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Reaper periodically deletes expired notes so storage does not depend on reads.
type Reaper struct {
	notes    cleaner
	interval time.Duration
	logger   *zap.Logger
}

// NewReaper constructs a Reaper. A non-positive interval yields a Reaper whose Run returns immediately.
func NewReaper(service cleaner, interval time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = noOpLogger
	}
	return &Reaper{notes: service, interval: interval, logger: logger}
}

// Run sweeps on every tick until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	if r == nil || r.notes == nil || r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("note reaper started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("note reaper stopped")
			return
		case <-ticker.C:
			removed, err := r.notes.Cleanup(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn("note reaper sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				r.logger.Debug("note reaper sweep", zap.Int64("removed", removed))
			}
		}
	}
}
