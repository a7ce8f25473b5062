package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twinisland/filebay/internal/telemetry/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64,
	WriteBufferSize: 64,
	// The status feed carries no secrets and is read by browser pages
	// served from anywhere.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Busy and idle frames of the status websocket.
const (
	FrameBusy = "1"
	FrameIdle = "0"
)

// handleStatus handles GET /api/status. A websocket upgrade streams the busy
// bit on every notifier tick; a plain request gets a JSON snapshot.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status != nil && websocket.IsWebSocketUpgrade(r) {
		h.streamStatus(w, r)
		return
	}

	st := h.uploads.Status(r.Context())
	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		Accepting: st.Accepting,
		Reserved:  st.Reserved,
		Live:      st.Live,
		Capacity:  st.Capacity,
	})
}

func (h *Handler) streamStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.L(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Debug("status websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The server read timeout would otherwise cut long-lived subscribers.
	_ = conn.SetReadDeadline(time.Time{})

	id, updates := h.status.Subscribe()
	defer h.status.Unsubscribe(id)

	// Client frames are ignored; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(busy bool) bool {
		frame := FrameIdle
		if busy {
			frame = FrameBusy
		}
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		return conn.WriteMessage(websocket.TextMessage, []byte(frame)) == nil
	}

	if !send(!h.uploads.Status(r.Context()).Accepting) {
		return
	}
	log.Debug("status subscriber connected", "subscriber", id.String())

	for {
		select {
		case busy, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(h.writeWait))
				return
			}
			if !send(busy) {
				return
			}
		case <-closed:
			log.Debug("status subscriber disconnected", "subscriber", id.String())
			return
		}
	}
}
