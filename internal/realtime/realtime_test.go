package realtime

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/voicenav/internal/bus"
)

func startHub(t *testing.T) (*Hub, *bus.Bus, string) {
	t.Helper()
	b := bus.New("hub")
	hub := NewHub(b)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		b.Close()
	})
	wsURL, err := WebSocketURL(srv.URL, "")
	require.NoError(t, err)
	return hub, b, wsURL
}

type events struct {
	mu  sync.Mutex
	got []bus.Event
}

func (e *events) add(ev bus.Event) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *events) all() []bus.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bus.Event(nil), e.got...)
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://localhost:8080", "/realtime", "ws://localhost:8080/realtime"},
		{"https://voice.example.com/", "/realtime", "wss://voice.example.com/realtime"},
		{"wss://hub.example.com/realtime", "/ignored", "wss://hub.example.com/realtime"},
	}
	for _, tt := range tests {
		got, err := WebSocketURL(tt.base, tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestClientReceivesHubEvents(t *testing.T) {
	hub, b, url := startHub(t)
	c := NewClient(url, nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	got := &events{}
	sub, err := c.Subscribe("commands/sess-a", got.add)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Count("commands/sess-a") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Peers())

	require.NoError(t, b.Publish(context.Background(), "commands/sess-a", "function-call", map[string]string{"requestId": "r1"}))
	require.NoError(t, b.Publish(context.Background(), "commands/sess-b", "function-call", map[string]string{"requestId": "r2"}))

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := got.all()[0]
	assert.Equal(t, "function-call", ev.Name)
	assert.Equal(t, "hub", ev.Source)
	var payload map[string]string
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, "r1", payload["requestId"])

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Eventually(t, func() bool { return b.Count("commands/sess-a") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestClientPublishReachesBus(t *testing.T) {
	_, b, url := startHub(t)
	got := &events{}
	sub, err := b.Subscribe("responses/sess-a", got.add)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	c := NewClient(url, nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Publish(context.Background(), "responses/sess-a", "function-response", map[string]any{"requestId": "r1", "success": true}))

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := got.all()[0]
	assert.Equal(t, "function-response", ev.Name)
	assert.NotEmpty(t, ev.Source, "stamped with the peer id")
	assert.NotEqual(t, "hub", ev.Source)
}

func TestSubscriptionsAreRefCounted(t *testing.T) {
	_, b, url := startHub(t)
	c := NewClient(url, nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	one, err := c.Subscribe("discovery", func(bus.Event) {})
	require.NoError(t, err)
	two, err := c.Subscribe("discovery", func(bus.Event) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Count("discovery") == 1 }, 2*time.Second, 5*time.Millisecond)

	one.Unsubscribe()
	// the hub keeps the topic while a local handler remains
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.Count("discovery"))

	two.Unsubscribe()
	require.Eventually(t, func() bool { return b.Count("discovery") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestDisconnectReleasesPeerSubscriptions(t *testing.T) {
	hub, b, url := startHub(t)
	c := NewClient(url, nil)
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Subscribe("commands/global", func(bus.Event) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Count("commands/global") == 1 }, 2*time.Second, 5*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool {
		return b.Count("commands/global") == 0 && hub.Peers() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Publish(context.Background(), "x", "y", nil), ErrNotConnected)
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	hub, b, url := startHub(t)
	c := NewClient(url, nil)
	defer c.Close()

	// subscribing before connecting is allowed
	got := &events{}
	_, err := c.Subscribe("commands/sess-a", got.add)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Publish(context.Background(), "x", "y", nil), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return b.Count("commands/sess-a") == 1 }, 2*time.Second, 5*time.Millisecond)

	// the hub drops everyone; the client does not redial by itself
	done := c.Done()
	hub.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the disconnect")
	}
	assert.False(t, c.Connected())
	require.Eventually(t, func() bool { return b.Count("commands/sess-a") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubRejectsBadFrames(t *testing.T) {
	_, _, url := startHub(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Frame{Type: "shout", Ref: "r1"}))
	var f Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, "r1", f.Ref)
	assert.Equal(t, "unknown frame type", f.Error)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameSubscribe, Ref: "r2"}))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "r2", f.Ref)
	assert.Equal(t, bus.ErrEmptyTopic.Error(), f.Error)
}
