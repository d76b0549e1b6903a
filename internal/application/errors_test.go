package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/example/eventflow/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"title": "required", "capacity": "invalid"}}
	if got := withFields.Error(); got != "validation failed: capacity, title" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	base.add("first", "ignored")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected first message to win, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}

	if (&ValidationError{}).orNil() != nil {
		t.Fatalf("expected orNil to return nil for an empty error")
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   error
		want error
	}{
		{persistence.ErrNotFound, ErrNotFound},
		{fmt.Errorf("wrapped: %w", persistence.ErrDuplicate), ErrAlreadyExists},
		{persistence.ErrCapacityReached, ErrCapacityReached},
		{persistence.ErrStateConflict, ErrConflict},
		{persistence.ErrForeignKeyViolation, ErrConflict},
		{context.DeadlineExceeded, context.DeadlineExceeded},
	}
	for _, tc := range cases {
		if got := mapRepoError(tc.in); !errors.Is(got, tc.want) {
			t.Errorf("mapRepoError(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if mapRepoError(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}

	other := errors.New("disk full")
	if got := mapRepoError(other); got != other {
		t.Fatalf("expected unknown errors to pass through, got %v", got)
	}
}

func TestUpstreamError(t *testing.T) {
	t.Parallel()

	err := upstreamError("users", errors.New("connection refused"))
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if got := upstreamError("users", context.Canceled); !errors.Is(got, context.Canceled) || errors.Is(got, ErrUpstreamUnavailable) {
		t.Fatalf("expected context errors to pass through, got %v", got)
	}
}
