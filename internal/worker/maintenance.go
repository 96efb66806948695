package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"geo-export-service/internal/metrics"
	"geo-export-service/internal/queue"
)

// Purger deletes job records past their expiry.
type Purger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// RunReaper periodically returns messages whose lease expired (the claimant
// crashed or stalled) to the queue. It blocks until ctx is cancelled.
func RunReaper(ctx context.Context, r queue.Reaper, every time.Duration, batch int64, logger *zap.Logger) {
	tick(ctx, every, func() {
		n, err := r.RequeueExpired(ctx, batch)
		if err != nil {
			logger.Error("requeue expired leases", zap.Error(err))
			return
		}
		if n > 0 {
			metrics.LeasesRequeued.Add(float64(n))
			logger.Info("requeued expired leases", zap.Int64("count", n))
		}
	})
}

// RunPurger periodically deletes expired job records. It blocks until ctx is cancelled.
func RunPurger(ctx context.Context, p Purger, every time.Duration, logger *zap.Logger) {
	tick(ctx, every, func() {
		n, err := p.DeleteExpired(ctx)
		if err != nil {
			logger.Error("purge expired jobs", zap.Error(err))
			return
		}
		if n > 0 {
			metrics.JobsPurged.Add(float64(n))
			logger.Info("purged expired jobs", zap.Int64("count", n))
		}
	})
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
