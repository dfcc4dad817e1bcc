package api

import (
	"net/http"
	"time"
)

// SendMessageRequest is the body of POST /api/v1/matches/{id}/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is a stored chat message.
type MessageResponse struct {
	ID        string `json:"id"`
	MatchID   string `json:"match_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"` // ISO 8601 format
}

// MessageHandlers serves chat messages between matched users.
type MessageHandlers struct {
	sessions SessionProvider
}

// NewMessageHandlers creates MessageHandlers.
func NewMessageHandlers(sessions SessionProvider) *MessageHandlers {
	return &MessageHandlers{sessions: sessions}
}

// Send handles POST /api/v1/matches/{id}/messages.
func (h *MessageHandlers) Send(w http.ResponseWriter, r *http.Request) {
	viewerID := viewerFrom(r)
	if viewerID == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return
	}

	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.sessions.Get(viewerID).SendMessage(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r.Context(), http.StatusCreated, MessageResponse{
		ID:        msg.ID,
		MatchID:   msg.MatchID,
		SenderID:  msg.SenderID,
		Text:      msg.Content,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
	})
}
