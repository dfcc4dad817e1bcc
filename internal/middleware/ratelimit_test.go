package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/matchfeed/internal/ratelimit"
)

type errStore struct{}

func (errStore) Take(context.Context, string, ratelimit.BucketConfig) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("connection refused")
}

type recordingStore struct {
	keys []string
}

func (s *recordingStore) Take(_ context.Context, key string, _ ratelimit.BucketConfig) (ratelimit.Decision, error) {
	s.keys = append(s.keys, key)
	return ratelimit.Decision{Allowed: true, Remaining: 1}, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_RejectsWhenExhausted(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := ratelimit.NewMemoryStore(func() time.Time { return now })
	metrics := NewMetrics()

	handler := RateLimiter(store, RateLimitOptions{
		Bucket:  "api",
		Config:  ratelimit.BucketConfig{Capacity: 2, RefillInterval: 4 * time.Second},
		Key:     IPKeyFunc(),
		Metrics: metrics,
	})(okHandler())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/discovery/feed", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected first two requests to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", codes[2])
	}
	if got := last.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
	if got := last.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("expected X-RateLimit-Limit 2, got %q", got)
	}
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}

	var body errorBody
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error.Code != ErrCodeRateLimited {
		t.Errorf("expected code %s, got %s", ErrCodeRateLimited, body.Error.Code)
	}
	if got := counterValue(t, metrics.rateLimitRejections); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	metrics := NewMetrics()
	handler := RateLimiter(errStore{}, RateLimitOptions{
		Bucket:  "api",
		Config:  ratelimit.BucketConfig{Capacity: 1, RefillInterval: time.Minute},
		Metrics: metrics,
	})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 on store failure, got %d", rr.Code)
	}
	if got := counterValue(t, metrics.rateLimitErrors); got != 1 {
		t.Errorf("expected 1 store error, got %v", got)
	}
}

func TestRateLimiter_Keys(t *testing.T) {
	tests := []struct {
		name    string
		viewer  string
		headers map[string]string
		want    string
	}{
		{"viewer", "viewer-1", nil, "api:viewer:viewer-1"},
		{"remote addr", "", nil, "api:ip:192.0.2.1"},
		{"forwarded for", "", map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}, "api:ip:198.51.100.4"},
		{"real ip", "", map[string]string{"X-Real-IP": "198.51.100.9"}, "api:ip:198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			handler := RateLimiter(store, RateLimitOptions{
				Bucket: "api",
				Config: ratelimit.BucketConfig{Capacity: 1, RefillInterval: time.Minute},
			})(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.viewer != "" {
				req = req.WithContext(SetViewerID(req.Context(), tt.viewer))
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if len(store.keys) != 1 || store.keys[0] != tt.want {
				t.Errorf("expected key %q, got %v", tt.want, store.keys)
			}
		})
	}
}

func TestSetRetryAfter(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "1"},
		{200 * time.Millisecond, "1"},
		{1500 * time.Millisecond, "2"},
		{30 * time.Second, "30"},
	}

	for _, tt := range tests {
		rr := httptest.NewRecorder()
		SetRetryAfter(rr, tt.d)
		if got := rr.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.d, tt.want, got)
		}
	}
}
