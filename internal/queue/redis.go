package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"geo-export-service/internal/entity"
)

type Keys struct {
	Queue      string
	Processing string
	Leases     string
}

// RedisQueue implements a reliable queue using Redis lists.
// Receive: BRPOPLPUSH queue -> processing, then a lease (zset score = deadline).
// Ack:     LREM from processing + ZREM lease.
// Reaper:  leases past their deadline are moved back to queue atomically.
type RedisQueue struct {
	rdb        *redis.Client
	keys       Keys
	visibility time.Duration
	now        func() time.Time
}

func NewRedisQueue(rdb *redis.Client, keys Keys, visibility time.Duration) *RedisQueue {
	if visibility <= 0 {
		visibility = 15 * time.Minute
	}
	return &RedisQueue{rdb: rdb, keys: keys, visibility: visibility, now: time.Now}
}

// requeueScript returns an expired message to the queue only if it is still in
// processing, so a concurrent Ack wins.
var requeueScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[2], 1, ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
if removed > 0 then
  redis.call('LPUSH', KEYS[1], ARGV[1])
end
return removed
`)

func (q *RedisQueue) Send(ctx context.Context, msg entity.Message) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.keys.Queue, body).Err()
}

func (q *RedisQueue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	body, err := q.rdb.BRPopLPush(ctx, q.keys.Queue, q.keys.Processing, wait).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, err
	}

	// without a lease the reaper adopts the item on its next pass
	if err := q.rdb.ZAdd(ctx, q.keys.Leases, redis.Z{
		Score:  float64(q.deadline().UnixMilli()),
		Member: body,
	}).Err(); err != nil {
		return nil, err
	}

	return &Delivery{Body: []byte(body), Receipt: body}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, q.keys.Processing, 1, d.Receipt).Err(); err != nil {
		return err
	}
	return q.rdb.ZRem(ctx, q.keys.Leases, d.Receipt).Err()
}

// RequeueExpired moves up to max messages whose lease ran out back to the queue.
// Processing items that never got a lease are given one first.
func (q *RedisQueue) RequeueExpired(ctx context.Context, max int64) (int64, error) {
	if err := q.adoptOrphans(ctx); err != nil {
		return 0, err
	}

	expired, err := q.rdb.ZRangeByScore(ctx, q.keys.Leases, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: max,
	}).Result()
	if err != nil {
		return 0, err
	}

	var moved int64
	keys := []string{q.keys.Queue, q.keys.Processing, q.keys.Leases}
	for _, body := range expired {
		n, err := requeueScript.Run(ctx, q.rdb, keys, body).Int64()
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (q *RedisQueue) adoptOrphans(ctx context.Context) error {
	items, err := q.rdb.LRange(ctx, q.keys.Processing, 0, -1).Result()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	score := float64(q.deadline().UnixMilli())
	members := make([]redis.Z, 0, len(items))
	for _, body := range items {
		members = append(members, redis.Z{Score: score, Member: body})
	}
	return q.rdb.ZAddNX(ctx, q.keys.Leases, members...).Err()
}

func (q *RedisQueue) deadline() time.Time {
	return q.now().Add(q.visibility)
}
