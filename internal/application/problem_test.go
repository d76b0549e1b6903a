package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
		suggests  bool
	}{
		{"validation", &ValidationError{FieldErrors: map[string]string{"title": "required"}}, http.StatusUnprocessableEntity, CodeValidation, false, false},
		{"wrapped validation in auth error", &AuthError{Code: CodeValidation, Err: &ValidationError{FieldErrors: map[string]string{"email": "bad"}}}, http.StatusUnprocessableEntity, CodeValidation, false, false},
		{"invalid credentials", &AuthError{Code: CodeInvalidCredentials, Err: ErrInvalidCredentials}, http.StatusUnauthorized, CodeInvalidCredentials, false, true},
		{"email not confirmed", ErrEmailNotConfirmed, http.StatusForbidden, CodeEmailNotConfirmed, false, true},
		{"disabled", ErrAccountDisabled, http.StatusForbidden, CodeAccountDisabled, false, true},
		{"session expired", ErrSessionExpired, http.StatusUnauthorized, "session_expired", false, true},
		{"forbidden", fmt.Errorf("%w: missing x", ErrUnauthorized), http.StatusForbidden, "forbidden", false, true},
		{"not found", ErrNotFound, http.StatusNotFound, "not_found", false, false},
		{"capacity", ErrCapacityReached, http.StatusConflict, "capacity_reached", false, true},
		{"conflict", fmt.Errorf("%w: cancelled", ErrConflict), http.StatusConflict, "conflict", false, false},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout", true, true},
		{"upstream", upstreamError("role_permissions", errors.New("down")), http.StatusServiceUnavailable, "upstream_unavailable", true, true},
		{"unexpected", errors.New("sql: connection reset"), http.StatusInternalServerError, "unexpected", true, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := Classify(tc.err)
			if p.Status != tc.status || p.Code != tc.code {
				t.Fatalf("Classify() = %d/%s, want %d/%s", p.Status, p.Code, tc.status, tc.code)
			}
			if p.Retryable != tc.retryable {
				t.Fatalf("expected retryable=%v", tc.retryable)
			}
			if (len(p.Suggestions) > 0) != tc.suggests {
				t.Fatalf("unexpected suggestions %v", p.Suggestions)
			}
			if p.Title == "" || p.Message == "" {
				t.Fatalf("expected title and message, got %#v", p)
			}
		})
	}
}

func TestClassifyHidesInternalDetails(t *testing.T) {
	t.Parallel()

	p := Classify(errors.New("near \"SELEC\": syntax error"))
	if p.Message != "An unexpected error occurred. Please try again." {
		t.Fatalf("expected generic message, got %q", p.Message)
	}

	fields := map[string]string{"title": "required"}
	p = Classify(&ValidationError{FieldErrors: fields})
	fields["title"] = "changed"
	if p.Fields["title"] != "required" {
		t.Fatalf("expected fields to be copied, got %v", p.Fields)
	}
}
