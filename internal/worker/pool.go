package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"geo-export-service/internal/queue"
)

type Pool struct {
	queue     queue.Queue
	processor *Processor
	workers   int
	wait      time.Duration
	logger    *zap.Logger
}

func NewPool(q queue.Queue, processor *Processor, workers int, wait time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:     q,
		processor: processor,
		workers:   workers,
		wait:      wait,
		logger:    logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its current message.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.loop(ctx, p.logger.With(zap.Int("worker", n)))
		}(i + 1)
	}
	wg.Wait()

	p.logger.Info("worker pool stopped")
}

// loop claims one message at a time.
func (p *Pool) loop(ctx context.Context, log *zap.Logger) {
	for ctx.Err() == nil {
		d, err := p.queue.Receive(ctx, p.wait)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			log.Error("receive failed", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}

		outcome := p.processor.Process(ctx, d.Body)
		if !outcome.Ack() {
			log.Warn("message left for redelivery", zap.String("outcome", string(outcome)))
			continue
		}

		// The job record already reflects the outcome; ack even during shutdown.
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := p.queue.Ack(ackCtx, d); err != nil {
			log.Error("ack failed", zap.String("outcome", string(outcome)), zap.Error(err))
		}
		cancel()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
