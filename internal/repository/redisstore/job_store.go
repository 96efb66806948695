// Package redisstore keeps job records as Redis hashes. Retention is the key's
// own expiry, so expired jobs disappear without a purge job.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/entity"
)

const maxTxAttempts = 3

type JobStore struct {
	rdb       *redis.Client
	keyPrefix string
	now       func() time.Time
}

func NewJobStore(rdb *redis.Client, keyPrefix string) *JobStore {
	if keyPrefix == "" {
		keyPrefix = "exportjob:"
	}
	return &JobStore{rdb: rdb, keyPrefix: keyPrefix, now: time.Now}
}

func (s *JobStore) key(id uuid.UUID) string {
	return s.keyPrefix + id.String()
}

func (s *JobStore) Create(ctx context.Context, job *entity.Job) error {
	key := s.key(job.ID)
	filters := job.Filters
	if len(filters) == 0 {
		filters = json.RawMessage(`{}`)
	}

	fields := map[string]any{
		"job_id":     job.ID.String(),
		"job_type":   string(job.Type),
		"status":     string(job.Status),
		"filters":    string(filters),
		"compress":   strconv.FormatBool(job.Compress),
		"created_at": job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at": job.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}

	return s.withTx(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.ErrDuplicateKey
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.ExpireAt(ctx, key, job.ExpiresAt)
			return nil
		})
		return err
	})
}

func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, apperr.ErrNotFound
	}

	job, err := decodeJob(id, vals)
	if err != nil {
		return nil, err
	}
	if job.Expired(s.now()) {
		return nil, apperr.ErrNotFound
	}
	return job, nil
}

// UpdatePartial writes only the named hash fields under WATCH, refusing any
// status change that would move the job backwards.
func (s *JobStore) UpdatePartial(ctx context.Context, id uuid.UUID, upd entity.JobUpdate) error {
	key := s.key(id)

	fields := map[string]any{}
	if upd.Status != nil {
		fields["status"] = string(*upd.Status)
	}
	if upd.Result != nil {
		b, err := json.Marshal(upd.Result)
		if err != nil {
			return err
		}
		fields["result"] = string(b)
	}
	if upd.Error != nil {
		fields["error"] = *upd.Error
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)

	return s.withTx(ctx, key, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "status").Result()
		if errors.Is(err, redis.Nil) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return err
		}
		if upd.Status != nil && !entity.CanTransition(entity.JobStatus(current), *upd.Status) {
			return apperr.ErrStaleTransition
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	})
}

// withTx runs fn under WATCH key, retrying when another client touched the key.
func (s *JobStore) withTx(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxAttempts; i++ {
		err = s.rdb.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func decodeJob(id uuid.UUID, vals map[string]string) (*entity.Job, error) {
	job := &entity.Job{
		ID:      id,
		Type:    entity.JobType(vals["job_type"]),
		Status:  entity.JobStatus(vals["status"]),
		Filters: json.RawMessage(vals["filters"]),
	}
	job.Compress, _ = strconv.ParseBool(vals["compress"])

	var err error
	if job.CreatedAt, err = parseTime(vals["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(vals["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if job.ExpiresAt, err = parseTime(vals["expires_at"]); err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}

	if raw, ok := vals["result"]; ok && raw != "" {
		var res entity.Result
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &res
	}
	if msg, ok := vals["error"]; ok {
		job.Error = &msg
	}
	return job, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
