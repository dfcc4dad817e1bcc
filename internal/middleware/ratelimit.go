package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/matchfeed/internal/ratelimit"
)

// Error codes written by middleware.
const (
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInternal     = "internal_error"
)

// KeyFunc returns the rate limit key of a request and its kind for metrics.
type KeyFunc func(r *http.Request) (key, keyType string)

// IPKeyFunc keys requests by client address, honoring X-Forwarded-For and
// X-Real-IP when set by a proxy.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) (string, string) {
		return "ip:" + clientIP(r), "ip"
	}
}

// ViewerKeyFunc keys requests by authenticated viewer, falling back to the
// client address for anonymous requests.
func ViewerKeyFunc() KeyFunc {
	ip := IPKeyFunc()
	return func(r *http.Request) (string, string) {
		if id := GetViewerID(r.Context()); id != "" {
			return "viewer:" + id, "viewer"
		}
		return ip(r)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitOptions configures RateLimiter.
type RateLimitOptions struct {
	Bucket  string // Bucket name, prefixed to every key
	Config  ratelimit.BucketConfig
	Key     KeyFunc
	Logger  *slog.Logger
	Metrics *Metrics
}

// RateLimiter throttles requests with a token bucket per key. Rejected
// requests get 429 with Retry-After in whole seconds. Store errors are
// logged and the request is allowed.
func RateLimiter(store ratelimit.Store, opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.Key == nil {
		opts.Key = ViewerKeyFunc()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, keyType := opts.Key(r)
			decision, err := store.Take(r.Context(), opts.Bucket+":"+key, opts.Config)
			if err != nil {
				opts.Logger.WarnContext(r.Context(), "rate limit store failed, allowing request",
					slog.String("bucket", opts.Bucket),
					slog.String("error", err.Error()))
				opts.Metrics.IncRateLimitStoreError()
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(opts.Config.Capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(math.Floor(decision.Remaining))))

			if !decision.Allowed {
				opts.Metrics.IncRateLimitRejection(opts.Bucket, keyType)
				SetRetryAfter(w, decision.RetryAfter)
				WriteErrorResponse(w, r, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRetryAfter sets the Retry-After header, rounded up to whole seconds
// and at least one.
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteErrorResponse writes the API error envelope and records code for
// the request log.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response", "error", err)
	}
}
