package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/voicenav/internal/bus"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// ErrNotConnected is returned when publishing without a live connection
var ErrNotConnected = errors.New("realtime: not connected")

// Client is a bus.Transport over a hub connection. Events from the hub are
// fanned out through a local bus, so handlers get the same ordering and
// panic isolation as in-process subscribers. A dropped connection is not
// redialed; call Connect again.
type Client struct {
	url         string
	header      http.Header
	local       *bus.Bus
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	writeMu sync.Mutex
	refs    map[string]int
	closed  bool
}

// NewClient creates a disconnected client for the hub at url
func NewClient(url string, header http.Header) *Client {
	done := make(chan struct{})
	close(done)
	return &Client{
		url:         url,
		header:      header,
		local:       bus.New("realtime-client"),
		dialTimeout: 30 * time.Second,
		done:        done,
		refs:        make(map[string]int),
	}
}

// SetDialTimeout bounds the websocket handshake
func (c *Client) SetDialTimeout(d time.Duration) {
	if d > 0 {
		c.dialTimeout = d
	}
}

// Connect dials the hub and re-subscribes every live topic. Connecting an
// already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return bus.ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	//nolint:bodyclose // WebSocket upgrade - response body handled by gorilla/websocket
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		L_error("realtime: connect failed", "url", c.url, "error", err)
		return fmt.Errorf("websocket connect: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.done = make(chan struct{})
	topics := make([]string, 0, len(c.refs))
	for topic := range c.refs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		if err := c.write(Frame{Type: FrameSubscribe, Topic: topic}); err != nil {
			c.drop(conn)
			return fmt.Errorf("resubscribe %s: %w", topic, err)
		}
	}

	go c.readLoop(conn)
	L_info("realtime: connected", "url", c.url, "topics", len(topics))
	return nil
}

// Connected reports whether the client holds a live connection
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Done is closed when the current connection ends
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Close disconnects and releases every local subscription
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		c.drop(conn)
	}
	c.local.Close()
}

// drop forgets conn if it is still the current connection
func (c *Client) drop(conn *websocket.Conn) {
	conn.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		close(c.done)
	}
}

func (c *Client) write(f Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.drop(conn)
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				L_warn("realtime: connection lost", "url", c.url, "error", err)
			}
			return
		}
		switch f.Type {
		case FrameEvent:
			if err := c.local.PublishEvent(f.busEvent()); err != nil {
				L_debug("realtime: local delivery failed", "topic", f.Topic, "error", err)
			}
		case FrameError:
			L_warn("realtime: hub error", "topic", f.Topic, "ref", f.Ref, "error", f.Error)
		default:
			L_debug("realtime: ignored frame", "type", f.Type)
		}
	}
}

// Subscribe registers handler locally and, for the first handler on topic,
// asks the hub for the topic. The hub request is best effort while
// disconnected; Connect replays it.
func (c *Client) Subscribe(topic string, handler bus.Handler) (bus.Subscription, error) {
	inner, err := c.local.Subscribe(topic, handler)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.refs[topic]++
	first := c.refs[topic] == 1
	c.mu.Unlock()

	if first {
		if err := c.write(Frame{Type: FrameSubscribe, Topic: topic}); err != nil && !errors.Is(err, ErrNotConnected) {
			L_warn("realtime: subscribe frame failed", "topic", topic, "error", err)
		}
	}
	return &clientSub{client: c, topic: topic, inner: inner}, nil
}

type clientSub struct {
	client *Client
	topic  string
	inner  bus.Subscription
	once   sync.Once
}

func (s *clientSub) Unsubscribe() {
	s.once.Do(func() {
		s.inner.Unsubscribe()
		c := s.client

		c.mu.Lock()
		c.refs[s.topic]--
		last := c.refs[s.topic] <= 0
		if last {
			delete(c.refs, s.topic)
		}
		c.mu.Unlock()

		if last {
			if err := c.write(Frame{Type: FrameUnsubscribe, Topic: s.topic}); err != nil && !errors.Is(err, ErrNotConnected) {
				L_debug("realtime: unsubscribe frame failed", "topic", s.topic, "error", err)
			}
		}
	})
}

// Publish sends an event to the hub. Fire and forget.
func (c *Client) Publish(ctx context.Context, topic, event string, payload any) error {
	if topic == "" {
		return bus.ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("realtime: marshal %s payload: %w", event, err)
		}
		raw = data
	}
	return c.write(Frame{
		Type:      FramePublish,
		Topic:     topic,
		Event:     event,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Topics returns the topics with live local subscriptions
func (c *Client) Topics() map[string]int {
	return c.local.Topics()
}
