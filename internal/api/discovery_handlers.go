package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/matchfeed/internal/candidate"
	"github.com/onnwee/matchfeed/internal/matching"
	"github.com/onnwee/matchfeed/internal/middleware"
	"github.com/onnwee/matchfeed/internal/session"
	"github.com/onnwee/matchfeed/internal/swipe"
)

// maxBodyBytes caps discovery request bodies.
const maxBodyBytes = 64 << 10

// SessionProvider returns the discovery session of a viewer, creating it on
// first use.
type SessionProvider interface {
	Get(viewerID string) *session.Session
}

// PhotoSigner turns stored photo paths into short-lived URLs.
type PhotoSigner interface {
	SignURLs(ctx context.Context, paths []string) ([]string, error)
}

// CandidateResponse is one card of the feed.
type CandidateResponse struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	Bio          string   `json:"bio,omitempty"`
	Age          int      `json:"age,omitempty"`
	Gender       string   `json:"gender,omitempty"`
	Orientation  string   `json:"orientation,omitempty"`
	Interests    []string `json:"interests"`
	Photos       []string `json:"photos"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
	LastActiveAt string   `json:"last_active_at,omitempty"` // ISO 8601 format
}

// FeedResponse is the response of GET /api/v1/discovery/feed.
type FeedResponse struct {
	Region     string              `json:"region"`
	Candidates []CandidateResponse `json:"candidates"`
}

// SwipeRequest is the body of POST /api/v1/discovery/swipe.
type SwipeRequest struct {
	TargetID string `json:"target_id"`
	Action   string `json:"action"`
}

// SwipeResponse is the response of POST /api/v1/discovery/swipe.
type SwipeResponse struct {
	Matched bool   `json:"matched"`
	MatchID string `json:"match_id,omitempty"`
}

// BlockRequest is the body of POST /api/v1/discovery/block.
type BlockRequest struct {
	TargetID string `json:"target_id"`
}

// SeenRequest is the body of POST /api/v1/discovery/seen.
type SeenRequest struct {
	IDs []string `json:"ids"`
}

// DiscoveryHandlers serves the discovery feed and swipe actions of the
// authenticated viewer.
type DiscoveryHandlers struct {
	sessions SessionProvider
	photos   PhotoSigner
	logger   *slog.Logger
}

// NewDiscoveryHandlers creates DiscoveryHandlers. photos may be nil, in
// which case photo paths are returned unsigned.
func NewDiscoveryHandlers(sessions SessionProvider, photos PhotoSigner, logger *slog.Logger) *DiscoveryHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryHandlers{
		sessions: sessions,
		photos:   photos,
		logger:   logger,
	}
}

// viewerSession returns the session of the authenticated viewer, writing a
// 401 when the request carries no viewer.
func (h *DiscoveryHandlers) viewerSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	viewerID := viewerFrom(r)
	if viewerID == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return nil, false
	}
	return h.sessions.Get(viewerID), true
}

func viewerFrom(r *http.Request) string {
	return middleware.GetViewerID(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

// Feed handles GET /api/v1/discovery/feed?region=nearby|country|global.
func (h *DiscoveryHandlers) Feed(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.viewerSession(w, r)
	if !ok {
		return
	}

	mode, err := candidate.ParseRegionMode(r.URL.Query().Get("region"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	ranked, err := sess.Feed(r.Context(), mode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	cards := make([]CandidateResponse, 0, len(ranked))
	for _, c := range ranked {
		card, err := h.toResponse(r.Context(), c)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		cards = append(cards, card)
	}

	writeJSON(w, r.Context(), http.StatusOK, FeedResponse{
		Region:     string(mode),
		Candidates: cards,
	})
}

func (h *DiscoveryHandlers) toResponse(ctx context.Context, c matching.Candidate) (CandidateResponse, error) {
	photos := c.Photos
	if h.photos != nil && len(photos) > 0 {
		signed, err := h.photos.SignURLs(ctx, photos)
		if err != nil {
			return CandidateResponse{}, err
		}
		photos = signed
	}
	if photos == nil {
		photos = []string{}
	}
	interests := c.Interests
	if interests == nil {
		interests = []string{}
	}

	resp := CandidateResponse{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Bio:         c.Bio,
		Age:         c.Age,
		Gender:      c.Gender,
		Orientation: c.Orientation,
		Interests:   interests,
		Photos:      photos,
		DistanceKm:  c.DistanceKm,
	}
	if c.LastActiveAt != nil {
		resp.LastActiveAt = c.LastActiveAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

// Swipe handles POST /api/v1/discovery/swipe.
func (h *DiscoveryHandlers) Swipe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.viewerSession(w, r)
	if !ok {
		return
	}

	var req SwipeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := sess.Swipe(r.Context(), req.TargetID, swipe.Action(req.Action))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, SwipeResponse{
		Matched: result.Matched(),
		MatchID: result.MatchID,
	})
}

// Block handles POST /api/v1/discovery/block.
func (h *DiscoveryHandlers) Block(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.viewerSession(w, r)
	if !ok {
		return
	}

	var req BlockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := sess.Block(r.Context(), req.TargetID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Seen handles POST /api/v1/discovery/seen, excluding candidates the client
// showed without a swipe.
func (h *DiscoveryHandlers) Seen(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.viewerSession(w, r)
	if !ok {
		return
	}

	var req SeenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess.MarkSeen(req.IDs...)
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/v1/discovery/reset, starting the session over.
func (h *DiscoveryHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.viewerSession(w, r)
	if !ok {
		return
	}

	sess.Reset()
	h.logger.InfoContext(r.Context(), "discovery session reset", slog.String("viewer_id", sess.ViewerID()))
	w.WriteHeader(http.StatusNoContent)
}
