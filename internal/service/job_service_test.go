package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/entity"
	"geo-export-service/internal/export"
	"geo-export-service/internal/filters"
	"geo-export-service/internal/service"
)

type fakeRepo struct {
	createCalled int
	created      []*entity.Job
	createErr    error

	jobs    map[uuid.UUID]*entity.Job
	updates []entity.JobUpdate
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]*entity.Job{}}
}

func (r *fakeRepo) Create(ctx context.Context, job *entity.Job) error {
	r.createCalled++
	if r.createErr != nil {
		return r.createErr
	}
	cp := *job
	r.created = append(r.created, &cp)
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeRepo) UpdatePartial(ctx context.Context, id uuid.UUID, upd entity.JobUpdate) error {
	r.updates = append(r.updates, upd)
	j, ok := r.jobs[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if upd.Status != nil {
		j.Status = *upd.Status
	}
	if upd.Error != nil {
		j.Error = upd.Error
	}
	if upd.Result != nil {
		j.Result = upd.Result
	}
	return nil
}

type queueStub struct {
	sent    []entity.Message
	sendErr error
}

func (q *queueStub) Send(ctx context.Context, msg entity.Message) error {
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, msg)
	return nil
}

func TestJobService_CreateJob_WritesOnceAndEnqueuesOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	queue := &queueStub{}
	svc := service.NewJobService(repo, queue, 6*time.Hour, nil)

	job, err := svc.CreateJob(ctx, service.CreateJobRequest{
		Type:    entity.JobTypeCount,
		Filters: json.RawMessage(`{"materials":["debris flow"],"pga_min":0.1}`),
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.createCalled != 1 {
		t.Fatalf("expected 1 create, got %d", repo.createCalled)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}
	if queue.sent[0].JobID != job.ID.String() || queue.sent[0].JobType != entity.JobTypeCount {
		t.Fatalf("unexpected message: %#v", queue.sent[0])
	}
	if job.Status != entity.StatusQueued {
		t.Fatalf("expected QUEUED, got %s", job.Status)
	}
	if got := job.ExpiresAt.Sub(job.CreatedAt); got != 6*time.Hour {
		t.Fatalf("expected ttl 6h, got %s", got)
	}

	stored, err := filters.FromJSON(repo.created[0].Filters)
	if err != nil {
		t.Fatalf("stored filters unreadable: %v", err)
	}
	if len(stored.Materials) != 1 || stored.Materials[0] != "debris flow" {
		t.Fatalf("expected normalized materials, got %#v", stored.Materials)
	}
	if stored.PGAMin == nil || *stored.PGAMin != 0.1 {
		t.Fatalf("expected pga_min 0.1, got %v", stored.PGAMin)
	}
}

func TestJobService_CreateJob_CountIgnoresCompress(t *testing.T) {
	repo := newFakeRepo()
	svc := service.NewJobService(repo, &queueStub{}, time.Hour, nil)

	job, err := svc.CreateJob(context.Background(), service.CreateJobRequest{
		Type:     entity.JobTypeCount,
		Compress: true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if job.Compress {
		t.Fatalf("expected compress=false for COUNT jobs")
	}
}

func TestJobService_CreateJob_ValidationHasNoSideEffects(t *testing.T) {
	cases := []service.CreateJobRequest{
		{Type: "PURGE", Filters: json.RawMessage(`{}`)},
		{Type: entity.JobTypeExport, Filters: json.RawMessage(`[1,2]`)},
		{Type: entity.JobTypeExport, Filters: json.RawMessage(`{"materials":`)},
	}

	for _, req := range cases {
		repo := newFakeRepo()
		queue := &queueStub{}
		svc := service.NewJobService(repo, queue, time.Hour, nil)

		_, err := svc.CreateJob(context.Background(), req)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
		if repo.createCalled != 0 || len(queue.sent) != 0 {
			t.Fatalf("expected no side effects, got creates=%d sends=%d", repo.createCalled, len(queue.sent))
		}
	}
}

func TestJobService_CreateJob_EnqueueFailureMarksError(t *testing.T) {
	repo := newFakeRepo()
	queue := &queueStub{sendErr: errors.New("connection refused")}
	svc := service.NewJobService(repo, queue, time.Hour, nil)

	_, err := svc.CreateJob(context.Background(), service.CreateJobRequest{Type: entity.JobTypeExport})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}

	job := repo.jobs[repo.created[0].ID]
	if job.Status != entity.StatusError {
		t.Fatalf("expected ERROR, got %s", job.Status)
	}
	if job.Error == nil || *job.Error != "failed to enqueue job" {
		t.Fatalf("unexpected error text: %v", job.Error)
	}
}

func TestJobService_GetJob(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := service.NewJobService(repo, &queueStub{}, time.Hour, nil)

	job, err := svc.CreateJob(ctx, service.CreateJobRequest{Type: entity.JobTypeCount})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetJob(ctx, job.ID, entity.JobTypeCount)
	if err != nil {
		t.Fatalf("expected job, got %v", err)
	}
	if got.Status != entity.StatusQueued {
		t.Fatalf("expected QUEUED right after create, got %s", got.Status)
	}

	if _, err := svc.GetJob(ctx, job.ID, entity.JobTypeExport); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for wrong job type, got %v", err)
	}
	if _, err := svc.GetJob(ctx, uuid.New(), entity.JobTypeCount); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

type fakeEngine struct {
	count    int64
	err      error
	lastF    filters.Filters
	compress bool
}

func (e *fakeEngine) Count(ctx context.Context, f filters.Filters) (int64, error) {
	e.lastF = f
	return e.count, e.err
}

func (e *fakeEngine) Export(ctx context.Context, f filters.Filters, compress bool) (*export.Artifact, error) {
	e.lastF = f
	e.compress = compress
	if e.err != nil {
		return nil, e.err
	}
	return &export.Artifact{Filename: "landslides.geojson"}, nil
}

func TestQueryService_Count(t *testing.T) {
	eng := &fakeEngine{count: 42}
	svc := service.NewQueryService(eng)

	n, err := svc.Count(context.Background(), json.RawMessage(`{"movements":"slide","pga_min":"abc"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
	if len(eng.lastF.Movements) != 1 || eng.lastF.PGAMin != nil {
		t.Fatalf("expected normalized filters, got %+v", eng.lastF)
	}
}

func TestQueryService_RejectsNonObject(t *testing.T) {
	eng := &fakeEngine{}
	svc := service.NewQueryService(eng)

	if _, err := svc.Export(context.Background(), json.RawMessage(`"x"`), true); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if eng.compress {
		t.Fatalf("engine should not have been called")
	}
}
