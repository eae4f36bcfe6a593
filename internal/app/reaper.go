package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically closes in-progress attempts whose deadline passed,
// marking them EXPIRED with a score over whatever was answered. Without it,
// expiry would only ever be observed lazily on the attempt's next read or
// write.
type Reaper struct {
	attempts *AttemptService
	interval time.Duration
	batch    int
	log      *zap.Logger
}

func NewReaper(attempts *AttemptService, interval time.Duration, batch int, log *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Reaper{
		attempts: attempts,
		interval: interval,
		batch:    batch,
		log:      log.With(zap.String("service", "reaper")),
	}
}

// Run sweeps until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and reports how many attempts it closed.
func (r *Reaper) Sweep(ctx context.Context) int {
	closed, err := r.attempts.CloseExpired(ctx, r.batch)
	if err != nil {
		r.log.Warn("sweep failed", zap.Error(err))
		return 0
	}
	if closed > 0 {
		r.log.Info("closed expired attempts", zap.Int("count", closed))
	}
	return closed
}
