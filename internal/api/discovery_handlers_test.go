package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/policy"
	"github.com/onnwee/matchfeed/internal/ratelimit"
	"github.com/onnwee/matchfeed/internal/session"
	"github.com/onnwee/matchfeed/internal/swipe"
)

type denyPolicy struct{}

func (denyPolicy) CheckAndConsume(ctx context.Context, actorID string, kind policy.ActionKind) (policy.Decision, error) {
	return policy.Denied(policy.ReasonRateLimited), nil
}

type prefixSigner struct {
	err error
}

func (s prefixSigner) SignURLs(ctx context.Context, paths []string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = "https://signed.example.com/" + p + "?sig=1"
	}
	return out, nil
}

type discoveryFixture struct {
	source   *candidate.InMemorySource
	store    *swipe.InMemoryStore
	sessions *session.Manager
	handlers *DiscoveryHandlers
}

func newDiscoveryFixture(t *testing.T, checker swipe.PolicyChecker, signer PhotoSigner, buckets map[string]ratelimit.BucketConfig) *discoveryFixture {
	t.Helper()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	source := candidate.NewInMemorySource(candidate.Config{Clock: clock})
	birth := now.AddDate(-28, 0, 0)
	lat, lng := 52.52, 13.405
	source.Put(candidate.Profile{ID: "viewer", DisplayName: "Viewer", Birthdate: birth, Interests: []string{"climbing"}, Latitude: &lat, Longitude: &lng, Country: "DE"})
	source.Put(candidate.Profile{ID: "a", DisplayName: "Ada", Birthdate: birth, Interests: []string{"Climbing"}, Photos: []string{"users/a/1.jpg"}, Country: "DE"})
	source.Put(candidate.Profile{ID: "b", DisplayName: "Bo", Birthdate: birth, Country: "FR"})

	store := swipe.NewInMemoryStore()
	engine := swipe.NewEngine(swipe.EngineConfig{Policy: checker, Likes: store, Matches: store})
	sessions := session.NewManager(session.Deps{
		Source:  source,
		Swiper:  engine,
		Blocks:  store,
		Buckets: buckets,
		Clock:   clock,
	}, time.Hour)

	return &discoveryFixture{
		source:   source,
		store:    store,
		sessions: sessions,
		handlers: NewDiscoveryHandlers(sessions, signer, nil),
	}
}

func asViewer(viewerID string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if viewerID != "" {
			r = r.WithContext(middleware.SetViewerID(r.Context(), viewerID))
		}
		h(w, r)
	})
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, reader))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body: %v, body: %s", err, rr.Body.String())
	}
	return resp.Error
}

func TestFeed(t *testing.T) {
	f := newDiscoveryFixture(t, nil, prefixSigner{}, nil)

	rr := do(t, asViewer("viewer", f.handlers.Feed), http.MethodGet, "/api/v1/discovery/feed?region=global", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp FeedResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Region != "global" {
		t.Errorf("expected region global, got %s", resp.Region)
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(resp.Candidates))
	}
	// Shared interest puts Ada first.
	if resp.Candidates[0].ID != "a" {
		t.Errorf("expected a first, got %s", resp.Candidates[0].ID)
	}
	if got := resp.Candidates[0].Photos; len(got) != 1 || !strings.HasPrefix(got[0], "https://signed.example.com/users/a/1.jpg") {
		t.Errorf("expected signed photo URL, got %v", got)
	}
	if resp.Candidates[1].Photos == nil || resp.Candidates[1].Interests == nil {
		t.Error("expected empty arrays instead of null")
	}
}

func TestFeed_Regions(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantIDs    int
	}{
		{"country keeps same country", "?region=country", http.StatusOK, 1},
		{"default nearby keeps unknown distance", "", http.StatusOK, 2},
		{"unknown region", "?region=moon", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDiscoveryFixture(t, nil, nil, nil)
			rr := do(t, asViewer("viewer", f.handlers.Feed), http.MethodGet, "/api/v1/discovery/feed"+tt.query, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if code := decodeError(t, rr).Code; code != ErrCodeValidation {
					t.Errorf("expected code %s, got %s", ErrCodeValidation, code)
				}
				return
			}
			var resp FeedResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Candidates) != tt.wantIDs {
				t.Errorf("expected %d candidates, got %d", tt.wantIDs, len(resp.Candidates))
			}
		})
	}
}

func TestFeed_Errors(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		f := newDiscoveryFixture(t, nil, nil, nil)
		rr := do(t, asViewer("", f.handlers.Feed), http.MethodGet, "/api/v1/discovery/feed", "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("unknown viewer", func(t *testing.T) {
		f := newDiscoveryFixture(t, nil, nil, nil)
		rr := do(t, asViewer("ghost", f.handlers.Feed), http.MethodGet, "/api/v1/discovery/feed", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("signing failure", func(t *testing.T) {
		f := newDiscoveryFixture(t, nil, prefixSigner{err: errors.New("no credentials")}, nil)
		rr := do(t, asViewer("viewer", f.handlers.Feed), http.MethodGet, "/api/v1/discovery/feed?region=global", "")
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})
}

func TestSwipe(t *testing.T) {
	f := newDiscoveryFixture(t, nil, nil, nil)

	rr := do(t, asViewer("a", f.handlers.Swipe), http.MethodPost, "/api/v1/discovery/swipe", `{"target_id":"viewer","action":"like"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var first SwipeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &first); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if first.Matched {
		t.Error("expected no match on the first like")
	}

	rr = do(t, asViewer("viewer", f.handlers.Swipe), http.MethodPost, "/api/v1/discovery/swipe", `{"target_id":"a","action":"superlike"}`)
	var second SwipeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !second.Matched || second.MatchID == "" {
		t.Errorf("expected a match, got %+v", second)
	}

	feed := do(t, asViewer("viewer", f.handlers.Feed), http.MethodGet, "/api/v1/discovery/feed?region=global", "")
	var resp FeedResponse
	if err := json.Unmarshal(feed.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode feed: %v", err)
	}
	for _, c := range resp.Candidates {
		if c.ID == "a" {
			t.Error("expected swiped candidate to be excluded from the feed")
		}
	}
}

func TestSwipe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		checker    swipe.PolicyChecker
		buckets    map[string]ratelimit.BucketConfig
		body       string
		repeat     int
		wantStatus int
		wantCode   string
	}{
		{"malformed json", nil, nil, `{"target_id":`, 1, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown action", nil, nil, `{"target_id":"a","action":"maybe"}`, 1, http.StatusBadRequest, ErrCodeValidation},
		{"self swipe", nil, nil, `{"target_id":"viewer","action":"like"}`, 1, http.StatusBadRequest, ErrCodeValidation},
		{"policy denial", denyPolicy{}, nil, `{"target_id":"a","action":"like"}`, 1, http.StatusForbidden, ErrCodePolicyDenied},
		{
			name: "session bucket empty",
			buckets: map[string]ratelimit.BucketConfig{
				ratelimit.BucketLike: {Capacity: 1, RefillInterval: time.Minute},
			},
			body:       `{"target_id":"a","action":"like"}`,
			repeat:     2,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   ErrCodeRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDiscoveryFixture(t, tt.checker, nil, tt.buckets)
			h := asViewer("viewer", f.handlers.Swipe)

			var rr *httptest.ResponseRecorder
			for i := 0; i < tt.repeat; i++ {
				rr = do(t, h, http.MethodPost, "/api/v1/discovery/swipe", tt.body)
			}
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if code := decodeError(t, rr).Code; code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After header")
			}
		})
	}
}

func TestBlock(t *testing.T) {
	f := newDiscoveryFixture(t, nil, nil, nil)
	h := asViewer("viewer", f.handlers.Block)

	for i := 0; i < 2; i++ {
		rr := do(t, h, http.MethodPost, "/api/v1/discovery/block", `{"target_id":"b"}`)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("block %d: expected 204, got %d", i+1, rr.Code)
		}
	}
	if !f.store.IsBlocked("viewer", "b") {
		t.Error("expected block to be stored")
	}

	rr := do(t, h, http.MethodPost, "/api/v1/discovery/block", `{"target_id":"viewer"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for self block, got %d", rr.Code)
	}
}

func TestSeenAndReset(t *testing.T) {
	f := newDiscoveryFixture(t, nil, nil, nil)

	rr := do(t, asViewer("viewer", f.handlers.Seen), http.MethodPost, "/api/v1/discovery/seen", `{"ids":["a","b"]}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := f.sessions.Get("viewer").Excluded(); len(got) != 2 {
		t.Errorf("expected 2 excluded ids, got %v", got)
	}

	rr = do(t, asViewer("viewer", f.handlers.Reset), http.MethodPost, "/api/v1/discovery/reset", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := f.sessions.Get("viewer").Excluded(); len(got) != 0 {
		t.Errorf("expected empty exclusion set after reset, got %v", got)
	}
}
