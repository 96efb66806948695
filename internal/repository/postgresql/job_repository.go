package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/entity"
)

// filters is stored as text, not jsonb: the blob is read back verbatim and
// re-normalized, so the store never touches its numbers.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS export_jobs (
    id         uuid PRIMARY KEY,
    job_type   text        NOT NULL,
    status     text        NOT NULL,
    filters    text        NOT NULL,
    compress   boolean     NOT NULL DEFAULT false,
    result     jsonb,
    error      text,
    created_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now(),
    expires_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS export_jobs_expires_at_idx ON export_jobs (expires_at);
`

const uniqueViolation = "23505"

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	filters := job.Filters
	if len(filters) == 0 {
		filters = json.RawMessage(`{}`)
	}

	const q = `
INSERT INTO export_jobs (id, job_type, status, filters, compress, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $6, $7);
`
	_, err := r.pool.Exec(ctx, q,
		job.ID,
		string(job.Type),
		string(job.Status),
		string(filters),
		job.Compress,
		job.CreatedAt,
		job.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.ErrDuplicateKey
		}
		return err
	}
	return nil
}

const selectJobSQL = `
SELECT id, job_type, status, filters, compress, result, error, created_at, updated_at, expires_at
FROM export_jobs
WHERE id = $1 AND expires_at > now();
`

// GetByID hides expired rows: they read as not found even before the purge removes them.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {

	var (
		job         entity.Job
		typeText    string
		statusText  string
		filtersText string
		resultBytes []byte
		errText     *string
		createdAt   time.Time
		updatedAt   time.Time
		expiresAt   time.Time
	)

	if err := r.pool.QueryRow(ctx, selectJobSQL, id).Scan(
		&job.ID,
		&typeText,
		&statusText,
		&filtersText,
		&job.Compress,
		&resultBytes, // NULL => nil
		&errText,     // NULL => nil
		&createdAt,
		&updatedAt,
		&expiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}

	job.Type = entity.JobType(typeText)
	job.Status = entity.JobStatus(statusText)
	job.Filters = json.RawMessage(filtersText)
	if resultBytes != nil {
		var res entity.Result
		if err := json.Unmarshal(resultBytes, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &res
	}
	job.Error = errText
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt
	job.ExpiresAt = expiresAt

	return &job, nil
}

// UpdatePartial sets only the named fields. A status change is guarded so it
// can never move a job backwards; a refused change returns ErrStaleTransition.
func (r *JobRepository) UpdatePartial(ctx context.Context, id uuid.UUID, upd entity.JobUpdate) error {
	q, args, err := updateStatement(id, upd)
	if err != nil || q == "" {
		return err
	}

	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// distinguish a missing row from a refused transition
	var exists bool
	const existsQ = `SELECT EXISTS (SELECT 1 FROM export_jobs WHERE id = $1 AND expires_at > now());`
	if err := r.pool.QueryRow(ctx, existsQ, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.ErrNotFound
	}
	return apperr.ErrStaleTransition
}

// DeleteExpired purges rows past their retention window.
func (r *JobRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM export_jobs WHERE expires_at <= now();`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// updateStatement builds the UPDATE for upd. Expired rows never match, and a
// status change only matches rows in one of the new status's predecessors.
// An empty statement means there is nothing to write.
func updateStatement(id uuid.UUID, upd entity.JobUpdate) (string, []any, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	where := "id = $1 AND expires_at > now()"

	if upd.Status != nil {
		args = append(args, string(*upd.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))

		args = append(args, statusStrings(entity.Predecessors(*upd.Status)))
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if upd.Result != nil {
		b, err := json.Marshal(upd.Result)
		if err != nil {
			return "", nil, err
		}
		args = append(args, b)
		sets = append(sets, fmt.Sprintf("result = $%d", len(args)))
	}
	if upd.Error != nil {
		args = append(args, *upd.Error)
		sets = append(sets, fmt.Sprintf("error = $%d", len(args)))
	}
	if len(sets) == 1 {
		return "", nil, nil
	}

	return "UPDATE export_jobs SET " + strings.Join(sets, ", ") + " WHERE " + where + ";", args, nil
}

func statusStrings(in []entity.JobStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
