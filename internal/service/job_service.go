package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/entity"
	"geo-export-service/internal/filters"
	"geo-export-service/internal/metrics"
)

// JobRepository is implemented by postgresql.JobRepository and redisstore.JobStore.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	UpdatePartial(ctx context.Context, id uuid.UUID, upd entity.JobUpdate) error
}

// JobQueue is the producer side of the work queue.
type JobQueue interface {
	Send(ctx context.Context, msg entity.Message) error
}

type JobService struct {
	repo   JobRepository
	queue  JobQueue
	ttl    time.Duration
	logger *zap.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func NewJobService(repo JobRepository, queue JobQueue, ttl time.Duration, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		repo:   repo,
		queue:  queue,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.New,
	}
}

type CreateJobRequest struct {
	Type     entity.JobType
	Filters  json.RawMessage
	Compress bool
}

// CreateJob normalizes the filters, records the job as QUEUED and sends its
// message. Nothing is written when the request is rejected.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (*entity.Job, error) {
	if !req.Type.Valid() {
		return nil, apperr.Validation("unsupported job type")
	}

	canonical, err := parseFilters(req.Filters)
	if err != nil {
		return nil, err
	}
	stored, err := canonical.Encode()
	if err != nil {
		return nil, apperr.Internal("encode filters", err)
	}

	now := s.now()
	job := &entity.Job{
		ID:        s.newID(),
		Type:      req.Type,
		Status:    entity.StatusQueued,
		Filters:   stored,
		Compress:  req.Type == entity.JobTypeExport && req.Compress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, apperr.Internal("create job", err)
	}

	if err := s.queue.Send(ctx, entity.Message{JobID: job.ID.String(), JobType: job.Type}); err != nil {
		s.logger.Error("enqueue failed",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Error(err),
		)
		if uerr := s.repo.UpdatePartial(ctx, job.ID, entity.Failed("failed to enqueue job")); uerr != nil {
			s.logger.Error("mark job failed", zap.String("job_id", job.ID.String()), zap.Error(uerr))
		}
		return nil, apperr.Internal("failed to enqueue job", err)
	}

	metrics.JobsCreated.WithLabelValues(string(job.Type)).Inc()
	s.logger.Info("job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Bool("compress", job.Compress),
	)
	return job, nil
}

// GetJob reads the job through. A job of a different type than asked for is
// reported as not found.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID, typ entity.JobType) (*entity.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("get job", err)
	}
	if typ != "" && job.Type != typ {
		return nil, apperr.ErrNotFound
	}
	return job, nil
}

func parseFilters(raw json.RawMessage) (filters.Filters, error) {
	f, err := filters.FromJSON(raw)
	switch {
	case errors.Is(err, filters.ErrNotObject):
		return filters.Filters{}, apperr.Validation(err.Error())
	case err != nil:
		return filters.Filters{}, apperr.Validation("invalid filters JSON")
	}
	return f, nil
}
