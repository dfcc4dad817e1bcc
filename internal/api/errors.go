// Package api provides the HTTP handlers of the discovery API and its
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/chat"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/ratelimit"
	"github.com/onnwee/matchfeed/internal/session"
	"github.com/onnwee/matchfeed/internal/swipe"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request body.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUnauthorized indicates a missing or invalid access token.
	ErrCodeUnauthorized = middleware.ErrCodeUnauthorized

	// ErrCodePolicyDenied indicates the abuse policy rejected the action.
	ErrCodePolicyDenied = "policy_denied"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates the session's action bucket is empty.
	ErrCodeRateLimited = middleware.ErrCodeRateLimited

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = middleware.ErrCodeInternal
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records code
// for the request log.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodePolicyDenied:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps an error returned by a discovery or chat operation to its
// response. Unknown errors are logged and reported as internal errors.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var validationErr *swipe.ValidationError
	var policyErr *swipe.PolicyDeniedError
	var limitErr *ratelimit.RateLimitedError

	switch {
	case errors.As(err, &validationErr):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, validationErr.Error())
	case errors.Is(err, candidate.ErrInvalidRegion):
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "region must be one of nearby, country, global")
	case errors.As(err, &policyErr):
		WriteError(w, ctx, http.StatusForbidden, ErrCodePolicyDenied, policyErr.Reason)
	case errors.As(err, &limitErr):
		middleware.SetRetryAfter(w, limitErr.RetryAfter)
		WriteError(w, ctx, http.StatusTooManyRequests, ErrCodeRateLimited, "too many actions, please slow down")
	case errors.Is(err, candidate.ErrViewerNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "profile not found")
	case errors.Is(err, chat.ErrMatchNotFound):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "match not found")
	case errors.Is(err, session.ErrMessagingDisabled):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "messaging is not available")
	default:
		slog.ErrorContext(ctx, "discovery request failed",
			"error", err,
			"path", r.URL.Path)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
