package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"geo-export-service/internal/apperr"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want apperr.Kind
	}{
		{apperr.Validation("bad"), apperr.KindValidation},
		{fmt.Errorf("wrapped: %w", apperr.TooManyResults(10)), apperr.KindTooManyResults},
		{fmt.Errorf("get: %w", apperr.ErrNotFound), apperr.KindNotFound},
		{apperr.ErrDuplicateKey, apperr.KindDuplicateKey},
		{errors.New("boom"), apperr.KindInternal},
	}
	for _, c := range cases {
		if got := apperr.KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v): expected %s, got %s", c.err, c.want, got)
		}
	}
}

func TestPublicMessage_HidesInternalDetails(t *testing.T) {
	err := apperr.Internal("export failed", errors.New("open /tmp/x: permission denied"))
	if got := apperr.PublicMessage(err); got != "Internal error" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if got := apperr.PublicMessage(errors.New("raw")); got != "Internal error" {
		t.Fatalf("expected generic message for untyped error, got %q", got)
	}
}

func TestPublicMessage_UpstreamIncludesCause(t *testing.T) {
	err := apperr.Upstream(errors.New("invalid GeoJSON representation"))
	want := "Database error: invalid GeoJSON representation"
	if got := apperr.PublicMessage(err); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPublicMessage_UnavailableHidesCause(t *testing.T) {
	err := apperr.Unavailable(errors.New("dial tcp 10.0.3.7:5432: connect: connection refused"), true)
	if got := apperr.PublicMessage(err); got != "Database unavailable" {
		t.Fatalf("expected fixed message, got %q", got)
	}
	if !apperr.IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if apperr.KindOf(err) != apperr.KindUpstreamQuery {
		t.Fatalf("expected upstream kind, got %s", apperr.KindOf(err))
	}
}

func TestIsRetryable(t *testing.T) {
	if !apperr.IsRetryable(fmt.Errorf("x: %w", apperr.Storage("upload failed", errors.New("timeout")))) {
		t.Fatalf("storage errors should be retryable")
	}
	if apperr.IsRetryable(apperr.Validation("nope")) {
		t.Fatalf("validation errors must not be retryable")
	}
	if apperr.IsRetryable(errors.New("plain")) {
		t.Fatalf("untyped errors must not be retryable")
	}
}
