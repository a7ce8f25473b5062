package connection

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Busy and idle frames sent on the status websocket.
const (
	frameBusy = "1"
	frameIdle = "0"
)

// StatusStream reads busy/idle frames from /api/status.
type StatusStream struct {
	conn *websocket.Conn
}

// DialStatus opens the status websocket.
func (c *HTTPClient) DialStatus(ctx context.Context) (*StatusStream, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/status"

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return nil, ParseError(resp)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &StatusStream{conn: conn}, nil
}

// Next blocks until the next frame and reports whether the server is busy.
// The stream ends with a *websocket.CloseError; see IsClosed.
func (s *StatusStream) Next() (bool, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return false, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		switch string(data) {
		case frameBusy:
			return true, nil
		case frameIdle:
			return false, nil
		default:
			return false, fmt.Errorf("unexpected status frame %q", data)
		}
	}
}

// Close sends a close frame and closes the connection.
func (s *StatusStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// IsClosed reports whether err ends the stream normally.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
