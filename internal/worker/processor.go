package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/entity"
	"geo-export-service/internal/export"
	"geo-export-service/internal/filters"
	"geo-export-service/internal/metrics"
	"geo-export-service/internal/queue"
	"geo-export-service/internal/storage"
)

// Outcome is what happened to one queue message.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDropped Outcome = "dropped"
	// OutcomeRetry leaves the message unacked so it is redelivered after the
	// visibility window.
	OutcomeRetry Outcome = "retry"
)

func (o Outcome) Ack() bool {
	return o != OutcomeRetry
}

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	UpdatePartial(ctx context.Context, id uuid.UUID, upd entity.JobUpdate) error
}

type Engine interface {
	Count(ctx context.Context, f filters.Filters) (int64, error)
	Export(ctx context.Context, f filters.Filters, compress bool) (*export.Artifact, error)
}

type Publisher interface {
	Publish(ctx context.Context, jobID uuid.UUID, localPath, filename, contentType string) (storage.Object, error)
}

type Processor struct {
	repo   JobRepo
	engine Engine
	store  Publisher
	logger *zap.Logger

	maxAttempts int
	backoff     time.Duration
}

type Option func(*Processor)

// WithRetry retries retryable engine and storage failures up to maxAttempts
// runs in total, doubling backoff between runs.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		p.backoff = backoff
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewProcessor(repo JobRepo, engine Engine, store Publisher, opts ...Option) *Processor {
	p := &Processor{
		repo:        repo,
		engine:      engine,
		store:       store,
		logger:      zap.NewNop(),
		maxAttempts: 1,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the job referenced by one message body to a terminal state.
// Only a store outage or shutdown yields OutcomeRetry; everything else is
// final for this message.
func (p *Processor) Process(ctx context.Context, body []byte) Outcome {
	msg, err := queue.Decode(body)
	if err != nil {
		p.logger.Warn("malformed message dropped", zap.ByteString("body", body), zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(typeLabel(""), string(OutcomeDropped)).Inc()
		return OutcomeDropped
	}

	outcome := p.process(ctx, msg)
	metrics.JobsProcessed.WithLabelValues(typeLabel(msg.JobType), string(outcome)).Inc()
	return outcome
}

// typeLabel keeps metric cardinality bounded: message bodies are not trusted.
func typeLabel(t entity.JobType) string {
	if t.Valid() {
		return string(t)
	}
	return "unknown"
}

func (p *Processor) process(ctx context.Context, msg entity.Message) Outcome {
	start := time.Now()
	log := p.logger.With(zap.String("job_id", msg.JobID), zap.String("job_type", string(msg.JobType)))

	id, err := uuid.Parse(msg.JobID)
	if err != nil {
		log.Warn("invalid job id, message dropped", zap.Error(err))
		return OutcomeDropped
	}

	job, err := p.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		log.Info("job not found or expired, message dropped")
		return OutcomeDropped
	case err != nil:
		log.Error("get job failed", zap.Error(err))
		return OutcomeRetry
	}

	if job.Status.Terminal() {
		log.Info("job already finished, skipping", zap.String("status", string(job.Status)))
		return OutcomeSkipped
	}
	if job.Type != msg.JobType {
		log.Warn("message job type differs from record", zap.String("record_type", string(job.Type)))
	}

	f, err := filters.FromJSON(job.Filters)
	if err != nil {
		log.Error("stored filters unreadable", zap.Error(err))
		return p.finish(ctx, log, job.ID, entity.Failed("stored filters are unreadable"))
	}

	if err := p.repo.UpdatePartial(ctx, job.ID, entity.Running()); err != nil {
		return p.updateFailed(log, err)
	}
	log.Info("job running", zap.String("status", string(entity.StatusRunning)))

	metrics.JobsInFlight.Inc()
	result, runErr := p.execute(ctx, log, job, f)
	metrics.JobsInFlight.Dec()
	metrics.JobDuration.WithLabelValues(typeLabel(job.Type)).Observe(time.Since(start).Seconds())

	if runErr != nil {
		if ctx.Err() != nil {
			log.Warn("interrupted by shutdown, leaving for redelivery", zap.Error(runErr))
			return OutcomeRetry
		}
		text := apperr.PublicMessage(runErr)
		log.Error("job failed",
			zap.String("status", string(entity.StatusError)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(runErr),
		)
		return p.finish(ctx, log, job.ID, entity.Failed(text))
	}

	out := p.finish(ctx, log, job.ID, entity.Done(result))
	if out == OutcomeDone {
		log.Info("job done",
			zap.String("status", string(entity.StatusDone)),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
	return out
}

// execute runs the job, repeating retryable failures while attempts remain.
func (p *Processor) execute(ctx context.Context, log *zap.Logger, job *entity.Job, f filters.Filters) (entity.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := p.run(ctx, job, f)
		if err == nil {
			return res, nil
		}
		if attempt >= p.maxAttempts || !apperr.IsRetryable(err) || ctx.Err() != nil {
			return entity.Result{}, err
		}

		wait := backoffFor(p.backoff, attempt)
		log.Warn("transient failure, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return entity.Result{}, err
		case <-time.After(wait):
		}
	}
}

// maxBackoff bounds the doubling so a large attempt count never overflows.
const maxBackoff = 5 * time.Minute

// backoffFor is the wait after the given failed attempt: base doubled per
// attempt, capped at maxBackoff.
func backoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < attempt && wait < maxBackoff; i++ {
		wait *= 2
	}
	return min(wait, maxBackoff)
}

func (p *Processor) run(ctx context.Context, job *entity.Job, f filters.Filters) (entity.Result, error) {
	switch job.Type {
	case entity.JobTypeCount:
		n, err := p.engine.Count(ctx, f)
		if err != nil {
			return entity.Result{}, err
		}
		return entity.Result{Count: &n}, nil

	case entity.JobTypeExport:
		art, err := p.engine.Export(ctx, f, job.Compress)
		if err != nil {
			return entity.Result{}, err
		}
		defer func() {
			if cerr := art.Cleanup(); cerr != nil {
				p.logger.Warn("artifact cleanup failed", zap.String("path", art.Dir), zap.Error(cerr))
			}
		}()

		obj, err := p.store.Publish(ctx, job.ID, art.Path, art.Filename, art.ContentType)
		if err != nil {
			return entity.Result{}, err
		}
		metrics.FeaturesExported.Add(float64(art.Features))

		return entity.Result{
			Filename:     art.Filename,
			RetrievalURL: obj.URL,
			StorageKey:   obj.Key,
			DownloadPath: storage.DownloadPath(obj.Key),
		}, nil

	default:
		return entity.Result{}, apperr.Validation(fmt.Sprintf("Unknown jobType %s", job.Type))
	}
}

func (p *Processor) finish(ctx context.Context, log *zap.Logger, id uuid.UUID, upd entity.JobUpdate) Outcome {
	if err := p.repo.UpdatePartial(ctx, id, upd); err != nil {
		return p.updateFailed(log, err)
	}
	if upd.Status != nil && *upd.Status == entity.StatusError {
		return OutcomeFailed
	}
	return OutcomeDone
}

func (p *Processor) updateFailed(log *zap.Logger, err error) Outcome {
	switch {
	case errors.Is(err, apperr.ErrStaleTransition):
		log.Info("job finished by another claimant, skipping")
		return OutcomeSkipped
	case errors.Is(err, apperr.ErrNotFound):
		log.Info("job expired while processing, message dropped")
		return OutcomeDropped
	default:
		log.Error("update job failed", zap.Error(err))
		return OutcomeRetry
	}
}
