// Package eventsource implements the three concurrent inputs that feed
// the change processor (C8): the remote WebSocket event stream, the
// periodic poller, and the local filesystem watcher.
package eventsource

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 8 * time.Second
	maxMessageSize        = 4 * 1024 * 1024
)

// EventHandler receives a normalized event kind ("created_in_folder",
// "edit", "title_updated", "trashed") plus whichever identifiers the
// payload carried.
type EventHandler func(kind, documentID, fileType string)

// wirePayload tolerates either file_token or document_id naming the
// same thing, per the event payload's inferred (not contractually
// documented) schema.
type wirePayload struct {
	EventType  string `json:"event_type"`
	DocumentID string `json:"document_id"`
	FileToken  string `json:"file_token"`
	FileType   string `json:"file_type"`
}

// WebSocketStream dials the Feishu event-subscription endpoint and
// forwards the four drive.file.* event kinds into a handler, reconnecting
// with exponential backoff (±12.5% jitter) on every disconnect.
type WebSocketStream struct {
	url     string
	token   string
	handler EventHandler
}

// NewWebSocketStream builds a stream that dials url with the given
// bearer token for subscription auth.
func NewWebSocketStream(url, token string, handler EventHandler) *WebSocketStream {
	return &WebSocketStream{url: url, token: token, handler: handler}
}

// Run dials and redials until ctx is cancelled.
func (s *WebSocketStream) Run(ctx context.Context) {
	delay := reconnectInitialDelay
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("websocket event stream disconnected, reconnecting", "error", err, "delay", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay = nextBackoff(delay)
	}
}

// nextBackoff doubles delay up to reconnectMaxDelay, then nudges it with
// jitter (±12.5%) so many clients reconnecting at once don't all retry
// in lockstep.
func nextBackoff(delay time.Duration) time.Duration {
	delay *= 2
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	jitter := time.Duration(rand.Float64() * float64(delay/4))
	return delay - delay/8 + jitter
}

func (s *WebSocketStream) connectAndConsume(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + s.token},
		},
	})
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(maxMessageSize)

	slog.Info("websocket event stream connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.dispatch(data)
	}
}

func (s *WebSocketStream) dispatch(data []byte) {
	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("discarding unparsable websocket event", "error", err)
		return
	}

	kind := normalizeEventType(p.EventType)
	if kind == "" {
		slog.Debug("ignoring unrecognized event type", "eventType", p.EventType)
		return
	}

	documentID := p.DocumentID
	if documentID == "" {
		documentID = p.FileToken
	}

	s.handler(kind, documentID, p.FileType)
}

// normalizeEventType reduces "drive.file.edit_v1" to "edit" etc.,
// matching the four kinds this daemon subscribes to.
func normalizeEventType(eventType string) string {
	const prefix = "drive.file."
	if !strings.HasPrefix(eventType, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(eventType, prefix)
	rest = strings.TrimSuffix(rest, "_v1")
	switch rest {
	case "created_in_folder", "edit", "title_updated", "trashed":
		return rest
	default:
		return ""
	}
}
