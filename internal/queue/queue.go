// Package queue carries job references from the front door to workers with
// at-least-once delivery: a received message is hidden for a visibility window
// and comes back if it is not acked in time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"geo-export-service/internal/entity"
)

// ErrEmpty is returned by Receive when nothing arrived within the wait.
var ErrEmpty = errors.New("queue: no message")

// Delivery is one claimed message. Body is kept raw so a malformed message can
// still be acked and dropped.
type Delivery struct {
	Body    []byte
	Receipt string
}

type Queue interface {
	Send(ctx context.Context, msg entity.Message) error
	// Receive claims at most one message, waiting up to wait.
	Receive(ctx context.Context, wait time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
}

// Reaper is implemented by queues that redeliver expired leases themselves
// instead of relying on the broker.
type Reaper interface {
	RequeueExpired(ctx context.Context, max int64) (int64, error)
}

func encode(msg entity.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a delivery body. Both fields are required.
func Decode(body []byte) (entity.Message, error) {
	var msg entity.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return entity.Message{}, err
	}
	if msg.JobID == "" || msg.JobType == "" {
		return entity.Message{}, errors.New("missing jobId or jobType")
	}
	return msg, nil
}
