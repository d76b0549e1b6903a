package application

import (
	"context"
	"errors"
	"net/http"
)

// Problem is the user-facing description of an error.
type Problem struct {
	Status      int               `json:"-"`
	Code        string            `json:"code"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Retryable   bool              `json:"retryable"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Classify turns any error returned by a service into a Problem. Errors that
// are not recognised become a generic internal error so nothing from the
// storage layer leaks to clients.
func Classify(err error) Problem {
	if err == nil {
		return Problem{Status: http.StatusOK}
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return Problem{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeValidation,
			Title:   "Please check the highlighted fields",
			Message: "Some of the submitted values are missing or invalid.",
			Fields:  copyFields(vErr.FieldErrors),
		}
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return Problem{
			Status:  http.StatusUnauthorized,
			Code:    CodeInvalidCredentials,
			Title:   "Sign-in failed",
			Message: "The e-mail address or password is incorrect.",
			Suggestions: []string{
				"Check the e-mail address for typos.",
				"Passwords are case sensitive; check Caps Lock.",
				"Create an account if you have not signed up yet.",
			},
		}
	case errors.Is(err, ErrEmailNotConfirmed):
		return Problem{
			Status:  http.StatusForbidden,
			Code:    CodeEmailNotConfirmed,
			Title:   "E-mail not confirmed",
			Message: "Confirm your e-mail address before signing in.",
			Suggestions: []string{
				"Use the confirmation token issued at sign-up.",
				"Sign up again if the token was lost.",
			},
		}
	case errors.Is(err, ErrAccountDisabled):
		return Problem{
			Status:      http.StatusForbidden,
			Code:        CodeAccountDisabled,
			Title:       "Account disabled",
			Message:     "This account has been deactivated.",
			Suggestions: []string{"Contact an administrator to reactivate the account."},
		}
	case errors.Is(err, ErrSessionExpired):
		return Problem{
			Status:      http.StatusUnauthorized,
			Code:        "session_expired",
			Title:       "Session expired",
			Message:     "Your session has expired.",
			Suggestions: []string{"Sign in again to continue."},
		}
	case errors.Is(err, ErrSessionRevoked):
		return Problem{
			Status:      http.StatusUnauthorized,
			Code:        "session_revoked",
			Title:       "Signed out",
			Message:     "This session was signed out.",
			Suggestions: []string{"Sign in again to continue."},
		}
	case errors.Is(err, ErrUnauthorized):
		return Problem{
			Status:      http.StatusForbidden,
			Code:        "forbidden",
			Title:       "Not allowed",
			Message:     "You do not have permission to perform this action.",
			Suggestions: []string{"Ask an administrator to grant the required permission."},
		}
	case errors.Is(err, ErrNotFound):
		return Problem{
			Status:  http.StatusNotFound,
			Code:    "not_found",
			Title:   "Not found",
			Message: "The requested resource does not exist.",
		}
	case errors.Is(err, ErrAlreadyExists):
		return Problem{
			Status:  http.StatusConflict,
			Code:    "already_exists",
			Title:   "Already exists",
			Message: "A record with the same unique value already exists.",
		}
	case errors.Is(err, ErrCapacityReached):
		return Problem{
			Status:      http.StatusConflict,
			Code:        "capacity_reached",
			Title:       "Event is full",
			Message:     "There are no seats left for this event.",
			Suggestions: []string{"Choose another event or contact the organizer."},
		}
	case errors.Is(err, ErrConflict):
		return Problem{
			Status:  http.StatusConflict,
			Code:    "conflict",
			Title:   "Action not possible",
			Message: "The resource is not in a state that allows this action.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return Problem{
			Status:    http.StatusGatewayTimeout,
			Code:      "timeout",
			Title:     "Request timed out",
			Message:   "The server took too long to respond.",
			Retryable: true,
			Suggestions: []string{
				"Check your connection and try again.",
				"If the problem persists, try again in a few minutes.",
			},
		}
	case errors.Is(err, ErrUpstreamUnavailable):
		return Problem{
			Status:    http.StatusServiceUnavailable,
			Code:      "upstream_unavailable",
			Title:     "Service unavailable",
			Message:   "A backing service could not be reached.",
			Retryable: true,
			Suggestions: []string{
				"Try again in a moment.",
				"Contact support if the problem continues.",
			},
		}
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return Problem{
			Status:  http.StatusUnauthorized,
			Code:    authErr.Code,
			Title:   "Authentication failed",
			Message: "The request could not be authenticated.",
		}
	}

	return Problem{
		Status:    http.StatusInternalServerError,
		Code:      "unexpected",
		Title:     "Something went wrong",
		Message:   "An unexpected error occurred. Please try again.",
		Retryable: true,
	}
}

func copyFields(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
