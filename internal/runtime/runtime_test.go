package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/voicenav/internal/actions"
	"github.com/roelfdiedericks/voicenav/internal/bus"
	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/metrics"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
	"github.com/roelfdiedericks/voicenav/internal/session"
)

const page = `<html><head><title>Shoes</title></head><body>
<nav><a href="/">Home</a></nav>
<button id="buy">Buy now</button>
</body></html>`

type fixture struct {
	bus     *bus.Bus
	page    *dom.StaticPage
	rt      *Runtime
	metrics *metrics.Manager
}

func start(t *testing.T, sessionID string, cfg Config) *fixture {
	t.Helper()
	b := bus.New("test")
	t.Cleanup(b.Close)

	p, err := dom.NewStaticPage(page, "https://shoes.example/")
	require.NoError(t, err)

	exec := actions.NewExecutor(p,
		actions.WithSettleDelay(0),
		actions.WithNotifier(NewStatusNotifier(b, sessionID)),
	)
	m := metrics.New()
	rt := New(b, exec, session.NewIdentity(sessionID), cfg)
	rt.SetMetrics(m)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(rt.Stop)

	return &fixture{bus: b, page: p, rt: rt, metrics: m}
}

// collect gathers function responses published on topic
type collect struct {
	mu    sync.Mutex
	resps []protocol.FunctionResponse
}

func (c *collect) all() []protocol.FunctionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.FunctionResponse(nil), c.resps...)
}

func listen(t *testing.T, b *bus.Bus, topic string) *collect {
	t.Helper()
	c := &collect{}
	sub, err := b.Subscribe(topic, func(ev bus.Event) {
		var resp protocol.FunctionResponse
		if ev.Decode(&resp) == nil {
			c.mu.Lock()
			c.resps = append(c.resps, resp)
			c.mu.Unlock()
		}
	})
	require.NoError(t, err)
	t.Cleanup(sub.Unsubscribe)
	return c
}

func call(session, requestID, fn string, params map[string]any) protocol.FunctionCall {
	return protocol.FunctionCall{
		FunctionName: fn,
		Parameters:   params,
		RequestID:    requestID,
		SessionID:    session,
		Timestamp:    time.Now().UnixMilli(),
	}
}

func publish(t *testing.T, b *bus.Bus, topic string, c protocol.FunctionCall) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), topic, protocol.EventFunctionCall, c))
}

func TestExecutesOwnCallAndResponds(t *testing.T) {
	f := start(t, "sess-a", Config{})
	got := listen(t, f.bus, protocol.ResponseTopic("sess-a"))

	publish(t, f.bus, protocol.CommandTopic("sess-a"), call("sess-a", "tc1-1", "get_page_context", map[string]any{"detail_level": "minimal"}))

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	resp := got.all()[0]
	assert.Equal(t, "tc1-1", resp.RequestID)
	assert.Equal(t, "get_page_context", resp.FunctionName)
	assert.True(t, resp.Success)
	snap, ok := resp.Result.(map[string]any)
	require.True(t, ok, "result travels as JSON")
	assert.Equal(t, "Shoes", snap["title"])
}

func TestIgnoresOtherSessionsOnGlobalTopic(t *testing.T) {
	f := start(t, "sess-a", Config{})
	mine := listen(t, f.bus, protocol.ResponseTopic("sess-a"))
	theirs := listen(t, f.bus, protocol.ResponseTopic("sess-b"))

	publish(t, f.bus, protocol.TopicGlobalCommands, call("sess-b", "tc2-1", "click_element", map[string]any{"target_text": "Buy now"}))
	publish(t, f.bus, protocol.TopicGlobalCommands, call("", "tc2-2", "click_element", map[string]any{"target_text": "Buy now"}))
	// a marker call of our own proves the earlier ones were processed
	publish(t, f.bus, protocol.TopicGlobalCommands, call("sess-a", "tc2-3", "go_back_to_top", nil))

	require.Eventually(t, func() bool { return len(mine.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tc2-3", mine.all()[0].RequestID)
	assert.Empty(t, theirs.all())

	doc, err := f.page.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.page.EventsFor(doc.Query("#buy").Node()))
}

func TestSameCallOnTwoTopicsRunsOnce(t *testing.T) {
	f := start(t, "sess-a", Config{})
	got := listen(t, f.bus, protocol.ResponseTopic("sess-a"))

	c := call("sess-a", "tc3-1", "click_element", map[string]any{"target_text": "Buy now"})
	publish(t, f.bus, protocol.CommandTopic("sess-a"), c)
	publish(t, f.bus, protocol.TopicGlobalCommands, c)

	require.Eventually(t, func() bool {
		return f.metrics.Counter("runtime", "duplicates") == 1 && len(got.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	doc, err := f.page.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"click"}, f.page.EventsFor(doc.Query("#buy").Node()))
	assert.Equal(t, int64(1), f.metrics.Counter("runtime", "commands"))
}

func TestSessionInitBindsCallID(t *testing.T) {
	f := start(t, "sess-a", Config{})
	got := listen(t, f.bus, protocol.ResponseTopic("call-77"))
	ctx := context.Background()

	// an init for someone else is ignored
	require.NoError(t, f.bus.Publish(ctx, protocol.TopicDiscovery, protocol.EventSessionInit,
		protocol.SessionInit{CallID: "call-66", SessionID: "sess-b", Timestamp: 1}))
	require.NoError(t, f.bus.Publish(ctx, protocol.TopicDiscovery, protocol.EventSessionInit,
		protocol.SessionInit{CallID: "call-77", SessionID: "sess-a", Timestamp: 2}))

	require.Eventually(t, func() bool { return f.rt.Identity().Owns("call-77") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.rt.Identity().Owns("call-66"))
	require.Eventually(t, func() bool { return f.bus.Count(protocol.CommandTopic("call-77")) == 1 }, 2*time.Second, 10*time.Millisecond)

	publish(t, f.bus, protocol.CommandTopic("call-77"), call("call-77", "tc4-1", "scroll_page", map[string]any{"direction": "down"}))
	require.Eventually(t, func() bool { return len(got.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, got.all()[0].Success)
}

func TestErrorResponses(t *testing.T) {
	f := start(t, "sess-a", Config{})
	got := listen(t, f.bus, protocol.ResponseTopic("sess-a"))

	publish(t, f.bus, protocol.CommandTopic("sess-a"), call("sess-a", "tc5-1", "dance", nil))
	publish(t, f.bus, protocol.CommandTopic("sess-a"), call("sess-a", "tc5-2", "click_element", map[string]any{"target_text": "Checkout"}))

	require.Eventually(t, func() bool { return len(got.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	resps := got.all()
	assert.False(t, resps[0].Success)
	assert.Contains(t, resps[0].Error, "unknown function")
	assert.False(t, resps[1].Success)
	assert.Contains(t, resps[1].Error, "target not found")

	snap := f.metrics.GetSnapshot()["runtime/results"].Data.(metrics.SuccessFailSnapshot)
	assert.Equal(t, int64(2), snap.Failures)
	assert.Equal(t, int64(1), snap.FailureReasons[string(protocol.ErrResolution)])
}

func TestSerializedResponsesKeepOrder(t *testing.T) {
	f := start(t, "sess-a", Config{})
	got := listen(t, f.bus, protocol.ResponseTopic("sess-a"))

	const n = 10
	for i := 0; i < n; i++ {
		publish(t, f.bus, protocol.CommandTopic("sess-a"), call("sess-a", fmt.Sprintf("tc6-%d", i), "scroll_page", nil))
	}
	require.Eventually(t, func() bool { return len(got.all()) == n }, 2*time.Second, 10*time.Millisecond)
	for i, resp := range got.all() {
		assert.Equal(t, fmt.Sprintf("tc6-%d", i), resp.RequestID)
	}
}

func TestStatusPublished(t *testing.T) {
	f := start(t, "sess-a", Config{Concurrent: true})

	var mu sync.Mutex
	var statuses []protocol.Status
	sub, err := f.bus.Subscribe(protocol.StatusTopic("sess-a"), func(ev bus.Event) {
		var s protocol.Status
		if ev.Decode(&s) == nil {
			mu.Lock()
			statuses = append(statuses, s)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	publish(t, f.bus, protocol.CommandTopic("sess-a"), call("sess-a", "tc7-1", "go_back_to_top", nil))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "tc7-1", statuses[0].RequestID)
	assert.Equal(t, "go_back_to_top", statuses[0].FunctionName)
	assert.True(t, statuses[0].Success)
}

func TestStopReleasesSubscriptions(t *testing.T) {
	f := start(t, "sess-a", Config{})
	assert.Equal(t, 1, f.bus.Count(protocol.CommandTopic("sess-a")))
	assert.Equal(t, 1, f.bus.Count(protocol.TopicGlobalCommands))
	assert.Equal(t, 1, f.bus.Count(protocol.TopicDiscovery))

	f.rt.Stop()
	f.rt.Stop()
	assert.Equal(t, 0, f.bus.Count(protocol.CommandTopic("sess-a")))
	assert.Equal(t, 0, f.bus.Count(protocol.TopicGlobalCommands))
	assert.Equal(t, 0, f.bus.Count(protocol.TopicDiscovery))
}

func TestConcurrentCallAfterStopIsDropped(t *testing.T) {
	f := start(t, "sess-a", Config{Concurrent: true})
	got := listen(t, f.bus, protocol.ResponseTopic("sess-a"))
	f.rt.Stop()

	// a delivery that was already in flight when Stop ran
	payload, err := json.Marshal(call("sess-a", "late-1", "go_back_to_top", nil))
	require.NoError(t, err)
	f.rt.handleCall(bus.Event{
		Topic:   protocol.CommandTopic("sess-a"),
		Name:    protocol.EventFunctionCall,
		Payload: payload,
	})

	assert.Never(t, func() bool {
		return f.metrics.Counter("runtime", "commands") > 0 || len(got.all()) > 0
	}, 200*time.Millisecond, 10*time.Millisecond)
}
