package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// NotificationStream yields the raw notifications published for a receiver
// until ctx is done.
type NotificationStream interface {
	Subscribe(ctx context.Context, receiverID string) (<-chan []byte, error)
}

// NotificationHandlers pushes match and message notifications to connected
// clients over WebSocket.
type NotificationHandlers struct {
	stream   NotificationStream
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewNotificationHandlers creates NotificationHandlers. checkOrigin decides
// which browser origins may connect; nil allows same-origin requests only.
func NewNotificationHandlers(stream NotificationStream, checkOrigin func(r *http.Request) bool, logger *slog.Logger) *NotificationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandlers{
		stream: stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Subscribe handles GET /api/v1/notifications/ws.
func (h *NotificationHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	viewerID := viewerFrom(r)
	if viewerID == "" {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required")
		return
	}

	// The subscription must outlive the upgrade but not the connection.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	messages, err := h.stream.Subscribe(ctx, viewerID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to subscribe to notifications",
			"error", err,
			"viewer_id", viewerID)
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeInternal, "Notifications unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection",
			"error", err,
			"viewer_id", viewerID)
		return
	}
	defer conn.Close()

	h.logger.InfoContext(ctx, "notification stream opened", "viewer_id", viewerID)

	// Reader: handles pongs and notices the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "notification stream closed", "viewer_id", viewerID)
			return
		case payload, ok := <-messages:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
