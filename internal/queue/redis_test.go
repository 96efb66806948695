package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"geo-export-service/internal/entity"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestQueue(t *testing.T, visibility time.Duration) (*RedisQueue, *redis.Client, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	q := NewRedisQueue(rdb, Keys{Queue: "jobs:queue", Processing: "jobs:processing", Leases: "jobs:leases"}, visibility)
	q.now = c.now
	return q, rdb, c
}

func TestRedisQueue_SendReceiveAck(t *testing.T) {
	q, rdb, _ := newTestQueue(t, time.Minute)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := q.Send(ctx, entity.Message{JobID: id, JobType: entity.JobTypeCount}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	d, err := q.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	msg, err := Decode(d.Body)
	if err != nil || msg.JobID != "a" {
		t.Fatalf("expected first sent message, got %s (%v)", d.Body, err)
	}
	if n := rdb.ZCard(ctx, "jobs:leases").Val(); n != 1 {
		t.Fatalf("expected one lease, got %d", n)
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n := rdb.LLen(ctx, "jobs:processing").Val(); n != 0 {
		t.Fatalf("expected empty processing list, got %d", n)
	}
	if n := rdb.ZCard(ctx, "jobs:leases").Val(); n != 0 {
		t.Fatalf("expected no leases after ack, got %d", n)
	}
	if n := rdb.LLen(ctx, "jobs:queue").Val(); n != 1 {
		t.Fatalf("expected the second message still queued, got %d", n)
	}
}

func TestRedisQueue_ExpiredLeaseRedelivered(t *testing.T) {
	q, rdb, c := newTestQueue(t, time.Minute)
	ctx := context.Background()

	if err := q.Send(ctx, entity.Message{JobID: "job-1", JobType: entity.JobTypeExport}); err != nil {
		t.Fatalf("send: %v", err)
	}
	first, err := q.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	c.t = c.t.Add(30 * time.Second)
	moved, err := q.RequeueExpired(ctx, 10)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 0 {
		t.Fatalf("expected nothing requeued inside the visibility window, got %d", moved)
	}

	c.t = c.t.Add(time.Minute)
	moved, err = q.RequeueExpired(ctx, 10)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected one message requeued, got %d", moved)
	}
	if n := rdb.LLen(ctx, "jobs:processing").Val(); n != 0 {
		t.Fatalf("expected processing list drained, got %d", n)
	}

	again, err := q.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if string(again.Body) != string(first.Body) {
		t.Fatalf("expected the same message redelivered, got %s", again.Body)
	}

	if err := q.Ack(ctx, again); err != nil {
		t.Fatalf("ack: %v", err)
	}
	c.t = c.t.Add(time.Hour)
	if moved, _ := q.RequeueExpired(ctx, 10); moved != 0 {
		t.Fatalf("acked message must not come back, got %d", moved)
	}
}

func TestRedisQueue_AckedBeforeReapIsNotRequeued(t *testing.T) {
	q, rdb, c := newTestQueue(t, time.Minute)
	ctx := context.Background()

	if err := q.Send(ctx, entity.Message{JobID: "job-2", JobType: entity.JobTypeCount}); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := q.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	// ack lands after the deadline but before the reaper runs
	if err := rdb.LRem(ctx, "jobs:processing", 1, d.Receipt).Err(); err != nil {
		t.Fatalf("lrem: %v", err)
	}
	c.t = c.t.Add(2 * time.Minute)

	moved, err := q.RequeueExpired(ctx, 10)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if moved != 0 || rdb.LLen(ctx, "jobs:queue").Val() != 0 {
		t.Fatalf("expected nothing requeued, moved=%d", moved)
	}
	if n := rdb.ZCard(ctx, "jobs:leases").Val(); n != 0 {
		t.Fatalf("expected stale lease cleared, got %d", n)
	}
}

func TestRedisQueue_OrphanAdopted(t *testing.T) {
	q, rdb, c := newTestQueue(t, time.Minute)
	ctx := context.Background()

	// a worker died between BRPOPLPUSH and writing its lease
	body, _ := encode(entity.Message{JobID: "job-3", JobType: entity.JobTypeCount})
	if err := rdb.LPush(ctx, "jobs:processing", body).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if moved, err := q.RequeueExpired(ctx, 10); err != nil || moved != 0 {
		t.Fatalf("expected orphan leased, not requeued: moved=%d err=%v", moved, err)
	}
	if n := rdb.ZCard(ctx, "jobs:leases").Val(); n != 1 {
		t.Fatalf("expected orphan to get a lease, got %d", n)
	}

	c.t = c.t.Add(2 * time.Minute)
	if moved, err := q.RequeueExpired(ctx, 10); err != nil || moved != 1 {
		t.Fatalf("expected orphan requeued: moved=%d err=%v", moved, err)
	}
	if got := rdb.LIndex(ctx, "jobs:queue", 0).Val(); got != string(body) {
		t.Fatalf("unexpected queued body %s", got)
	}
}

func TestRedisQueue_ReceiveEmpty(t *testing.T) {
	q, _, _ := newTestQueue(t, time.Minute)

	if _, err := q.Receive(context.Background(), time.Second); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
