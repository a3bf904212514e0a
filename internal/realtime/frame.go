// Package realtime bridges a bus over websockets. The Hub exposes a local
// bus to remote peers; the Client is a bus.Transport backed by a hub
// connection, so a page runtime can run in a different process from the
// webhook.
package realtime

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/bus"
)

// Frame types
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
	FrameEvent       = "event"
	FrameError       = "error"
)

// Frame is one websocket message in either direction
type Frame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ref       string          `json:"ref,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix millis
	Error     string          `json:"error,omitempty"`
}

func eventFrame(ev bus.Event) Frame {
	return Frame{
		Type:      FrameEvent,
		Topic:     ev.Topic,
		Event:     ev.Name,
		Payload:   ev.Payload,
		Source:    ev.Source,
		Timestamp: ev.Timestamp.UnixMilli(),
	}
}

func (f Frame) busEvent() bus.Event {
	ev := bus.Event{
		Topic:   f.Topic,
		Name:    f.Event,
		Payload: f.Payload,
		Source:  f.Source,
	}
	if f.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(f.Timestamp)
	}
	return ev
}

// WebSocketURL turns an http(s) base URL into the hub's ws(s) endpoint.
// ws:// and wss:// URLs are returned unchanged.
func WebSocketURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
		return u.String(), nil
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + path
	}
	return u.String(), nil
}
