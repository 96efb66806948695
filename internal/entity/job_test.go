package entity_test

import (
	"testing"
	"time"

	"geo-export-service/internal/entity"
)

func TestCanTransition_Monotonic(t *testing.T) {
	cases := []struct {
		from, to entity.JobStatus
		want     bool
	}{
		{entity.StatusQueued, entity.StatusRunning, true},
		{entity.StatusRunning, entity.StatusRunning, true},
		{entity.StatusRunning, entity.StatusDone, true},
		{entity.StatusRunning, entity.StatusError, true},
		{entity.StatusQueued, entity.StatusError, true},
		{entity.StatusDone, entity.StatusRunning, false},
		{entity.StatusError, entity.StatusRunning, false},
		{entity.StatusDone, entity.StatusError, false},
		{entity.StatusError, entity.StatusDone, false},
		{entity.StatusRunning, entity.StatusQueued, false},
	}

	for _, c := range cases {
		if got := entity.CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestJob_Expired(t *testing.T) {
	now := time.Now()
	j := &entity.Job{ExpiresAt: now.Add(time.Minute)}
	if j.Expired(now) {
		t.Fatalf("job should not be expired yet")
	}
	if !j.Expired(now.Add(time.Minute)) {
		t.Fatalf("job should be expired at its deadline")
	}
}
