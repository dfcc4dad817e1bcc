package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/matchfeed/internal/api"
	"github.com/onnwee/matchfeed/internal/auth"
	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/ratelimit"
	"github.com/onnwee/matchfeed/internal/session"
	"github.com/onnwee/matchfeed/internal/swipe"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server did not start on %s", addr)
}

// TestServe_GracefulShutdown verifies in-flight requests complete after the
// context is cancelled.
func TestServe_GracefulShutdown(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("done"))
	})

	addr := freeAddr(t)
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- serve(ctx, server, logger) }()
	waitForServer(t, addr)

	type result struct {
		body string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/slow")
		if err != nil {
			resCh <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		resCh <- result{body: string(body), err: err}
	}()

	<-started
	cancel()

	res := <-resCh
	if res.err != nil {
		t.Fatalf("expected in-flight request to complete, got %v", res.err)
	}
	if res.body != "done" {
		t.Errorf("expected body done, got %q", res.body)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(shutdownTimeout):
		t.Fatal("serve did not return after shutdown")
	}

	if !strings.Contains(logBuf.String(), "shutting down server") {
		t.Errorf("expected shutdown log, got %s", logBuf.String())
	}
}

func TestServe_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	server := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := serve(ctx, server, logger); err == nil {
		t.Error("expected error when the address is in use")
	}
}

type routerFixture struct {
	handler http.Handler
	token   string
}

func newRouterFixture(t *testing.T, apiBucket ratelimit.BucketConfig) *routerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Now()

	source := candidate.NewInMemorySource(candidate.Config{})
	birth := now.AddDate(-30, 0, 0)
	source.Put(candidate.Profile{ID: "viewer", DisplayName: "Viewer", Birthdate: birth, Country: "DE"})
	source.Put(candidate.Profile{ID: "a", DisplayName: "Ada", Birthdate: birth, Country: "DE"})

	store := swipe.NewInMemoryStore()
	engine := swipe.NewEngine(swipe.EngineConfig{Likes: store, Matches: store, Logger: logger})
	sessions := session.NewManager(session.Deps{
		Source: source,
		Swiper: engine,
		Blocks: store,
		Logger: logger,
	}, time.Hour)

	tokens, err := auth.NewJWTService("router-test-secret")
	if err != nil {
		t.Fatalf("failed to create token service: %v", err)
	}
	token, err := tokens.IssueAccessToken("viewer")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("failed to register metrics: %v", err)
	}

	handler := newRouter(routerDeps{
		Discovery: api.NewDiscoveryHandlers(sessions, nil, logger),
		Messages:  api.NewMessageHandlers(sessions),
		Health:    api.NewHealthHandlers(nil),
		Tokens:    tokens,
		Limits:    ratelimit.NewMemoryStore(time.Now),
		APIBucket: apiBucket,
		Gatherer:  reg,
		Metrics:   metrics,
		CORSOrigins: []string{
			"https://app.example.com",
		},
		Logger: logger,
	})
	return &routerFixture{handler: handler, token: token}
}

func (f *routerFixture) do(method, target, token string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error.Code
}

func TestRouter_Routes(t *testing.T) {
	f := newRouterFixture(t, ratelimit.BucketConfig{})

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		wantStatus int
		wantCode   string
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"ready without checkers", http.MethodGet, "/ready", "", http.StatusOK, ""},
		{"feed without token", http.MethodGet, "/api/v1/discovery/feed", "", http.StatusUnauthorized, api.ErrCodeUnauthorized},
		{"feed with token", http.MethodGet, "/api/v1/discovery/feed?region=global", f.token, http.StatusOK, ""},
		{"feed with bad region", http.MethodGet, "/api/v1/discovery/feed?region=moon", f.token, http.StatusBadRequest, api.ErrCodeValidation},
		{"reset", http.MethodPost, "/api/v1/discovery/reset", f.token, http.StatusNoContent, ""},
		{"message without token", http.MethodPost, "/api/v1/matches/" + uuid.Nil.String() + "/messages", "", http.StatusUnauthorized, api.ErrCodeUnauthorized},
		{"message without body", http.MethodPost, "/api/v1/matches/" + uuid.Nil.String() + "/messages", f.token, http.StatusBadRequest, api.ErrCodeBadRequest},
		{"unknown path", http.MethodGet, "/nope", "", http.StatusNotFound, api.ErrCodeNotFound},
		{"websocket disabled", http.MethodGet, "/api/v1/notifications/ws", f.token, http.StatusNotFound, api.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.target, tt.token, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, got)
				}
			}
			if rec.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("expected request id header")
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t, ratelimit.BucketConfig{})

	f.do(http.MethodGet, "/api/v1/discovery/feed", f.token, nil)

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, middleware.MetricHTTPRequestsTotal) {
		t.Errorf("expected %s in metrics output", middleware.MetricHTTPRequestsTotal)
	}
	if !strings.Contains(body, `route="GET /api/v1/discovery/feed"`) {
		t.Errorf("expected feed route label in metrics output, got %s", body)
	}
}

func TestRouter_APIRateLimit(t *testing.T) {
	f := newRouterFixture(t, ratelimit.BucketConfig{Capacity: 1, RefillInterval: time.Hour})

	if rec := f.do(http.MethodGet, "/api/v1/discovery/feed", f.token, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	rec := f.do(http.MethodGet, "/api/v1/discovery/feed", f.token, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if got := errorCode(t, rec); got != api.ErrCodeRateLimited {
		t.Errorf("expected code %s, got %s", api.ErrCodeRateLimited, got)
	}

	// Health is not limited.
	if rec := f.do(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("expected health to pass, got %d", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	f := newRouterFixture(t, ratelimit.BucketConfig{})

	tests := []struct {
		name      string
		origin    string
		wantAllow string
	}{
		{"allowed origin", "https://app.example.com", "https://app.example.com"},
		{"other origin", "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodOptions, "/api/v1/discovery/swipe", "", http.Header{
				"Origin":                        {tt.origin},
				"Access-Control-Request-Method": {http.MethodPost},
			})
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.wantAllow, got)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Error("expected nil checker without origins")
	}

	check := originChecker([]string{"https://app.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := check(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}
