package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/ratelimit"
	"github.com/onnwee/matchfeed/internal/swipe"
)

func TestWriteError_BasicFields(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(w, req.Context(), http.StatusNotFound, ErrCodeNotFound, "profile not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type to contain application/json, got %s", ct)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response body: %v, body: %s", err, w.Body.String())
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected error code %s, got %s", ErrCodeNotFound, resp.Error.Code)
	}
	if resp.Error.Message != "profile not found" {
		t.Errorf("expected message 'profile not found', got %s", resp.Error.Message)
	}
}

func TestWriteError_LoggedByMiddleware(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusForbidden, ErrCodePolicyDenied, "rate_limited")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/discovery/swipe", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["error_code"] != ErrCodePolicyDenied {
		t.Errorf("expected error_code %s in log, got %v", ErrCodePolicyDenied, entry["error_code"])
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodePolicyDenied, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusCodeMapping(tt.code); got != tt.want {
				t.Errorf("StatusCodeMapping(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter string
	}{
		{"validation", &swipe.ValidationError{Field: "action", Message: "bad"}, http.StatusBadRequest, ErrCodeValidation, ""},
		{"wrapped validation", fmt.Errorf("swipe: %w", &swipe.ValidationError{Field: "target_id", Message: "x"}), http.StatusBadRequest, ErrCodeValidation, ""},
		{"invalid region", candidate.ErrInvalidRegion, http.StatusBadRequest, ErrCodeValidation, ""},
		{"policy denied", &swipe.PolicyDeniedError{Reason: "rate_limited"}, http.StatusForbidden, ErrCodePolicyDenied, ""},
		{"rate limited", &ratelimit.RateLimitedError{Bucket: "like", RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, ErrCodeRateLimited, "2"},
		{"viewer not found", fmt.Errorf("failed to load viewer: %w", candidate.ErrViewerNotFound), http.StatusNotFound, ErrCodeNotFound, ""},
		{"storage failure", errors.New("connection reset"), http.StatusInternalServerError, ErrCodeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDomainError(w, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response body: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
			if got := w.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("expected Retry-After %q, got %q", tt.retryAfter, got)
			}
		})
	}
}
