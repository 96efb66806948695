package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindUpstreamQuery  Kind = "upstream_query"
	KindStorage        Kind = "storage"
	KindTooManyResults Kind = "too_many_results"
	KindDuplicateKey   Kind = "duplicate_key"
	KindInternal       Kind = "internal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStaleTransition is returned when a status update would move a job backwards
	// (e.g. a second claimant trying to run an already finished job).
	ErrStaleTransition = errors.New("stale status transition")
)

// Error carries a kind (for HTTP mapping and job error text) and a retry hint for the worker.
// Detail, when set, is client-safe text appended to Message by PublicMessage.
type Error struct {
	Kind      Kind
	Message   string
	Detail    string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Upstream is a query the database rejected. The cause text is shown to the
// client, so it must come from the database itself, not the network.
func Upstream(cause error) *Error {
	e := &Error{Kind: KindUpstreamQuery, Message: "Database error", Cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// Unavailable is a database that could not be reached or did not answer.
func Unavailable(cause error, retryable bool) *Error {
	return &Error{Kind: KindUpstreamQuery, Message: "Database unavailable", Retryable: retryable, Cause: cause}
}

func Storage(msg string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Retryable: true, Cause: cause}
}

func TooManyResults(limit int) *Error {
	return &Error{
		Kind:    KindTooManyResults,
		Message: fmt.Sprintf("Too many features requested (>%d). Please refine your selection.", limit),
	}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in the chain, or a kind derived
// from the sentinels; anything else is internal.
func KindOf(err error) Kind {
	var e *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicateKey
	default:
		return KindInternal
	}
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// PublicMessage is the text safe to show a client or store on a job record.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Internal error"
	}
	if e.Kind == KindInternal {
		return "Internal error"
	}
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}
