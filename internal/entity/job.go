package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeCount  JobType = "COUNT"
	JobTypeExport JobType = "EXPORT"
)

func (t JobType) Valid() bool {
	return t == JobTypeCount || t == JobTypeExport
}

type JobStatus string

const (
	StatusQueued  JobStatus = "QUEUED"
	StatusRunning JobStatus = "RUNNING"
	StatusDone    JobStatus = "DONE"
	StatusError   JobStatus = "ERROR"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Predecessors lists the statuses a job may be in right before moving to s.
// RUNNING -> RUNNING is allowed so a redelivered message can resume a job
// whose previous claimant crashed mid-run.
func Predecessors(s JobStatus) []JobStatus {
	switch s {
	case StatusRunning:
		return []JobStatus{StatusQueued, StatusRunning}
	case StatusDone, StatusError:
		return []JobStatus{StatusQueued, StatusRunning}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to keeps the status monotonic.
func CanTransition(from, to JobStatus) bool {
	for _, p := range Predecessors(to) {
		if p == from {
			return true
		}
	}
	return false
}

// Result is present only on DONE jobs: Count for COUNT, the artifact fields for EXPORT.
type Result struct {
	Count        *int64 `json:"count,omitempty"`
	Filename     string `json:"filename,omitempty"`
	RetrievalURL string `json:"retrievalUrl,omitempty"`
	StorageKey   string `json:"storageKey,omitempty"`
	DownloadPath string `json:"downloadPath,omitempty"`
}

type Job struct {
	ID        uuid.UUID       `json:"jobId"`
	Type      JobType         `json:"jobType"`
	Status    JobStatus       `json:"status"`
	Filters   json.RawMessage `json:"filters"`
	Compress  bool            `json:"compress"`
	Result    *Result         `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the record is past its retention window.
func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && !now.Before(j.ExpiresAt)
}

// JobUpdate names the mutable fields of a job; nil fields are left untouched.
type JobUpdate struct {
	Status *JobStatus
	Result *Result
	Error  *string
}

func Running() JobUpdate {
	s := StatusRunning
	return JobUpdate{Status: &s}
}

func Done(r Result) JobUpdate {
	s := StatusDone
	return JobUpdate{Status: &s, Result: &r}
}

func Failed(msg string) JobUpdate {
	s := StatusError
	return JobUpdate{Status: &s, Error: &msg}
}

// Message is the queue payload. Filters never travel through the queue.
type Message struct {
	JobID   string  `json:"jobId"`
	JobType JobType `json:"jobType"`
}
