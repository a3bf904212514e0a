package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	N int `json:"n"`
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New("test")
	defer b.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	sub, err := b.Subscribe("commands/a", func(ev Event) {
		var p payload
		assert.NoError(t, ev.Decode(&p))
		mu.Lock()
		got = append(got, p.N)
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), "commands/a", "function-call", payload{N: i}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New("test")
	defer b.Close()

	hits := make(chan string, 4)
	_, err := b.Subscribe("commands/a", func(ev Event) { hits <- ev.Topic })
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "commands/b", "function-call", nil))
	require.NoError(t, b.Publish(context.Background(), "commands/a", "function-call", nil))

	select {
	case topic := <-hits:
		assert.Equal(t, "commands/a", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
	select {
	case topic := <-hits:
		t.Fatalf("unexpected delivery on %s", topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeReleases(t *testing.T) {
	b := New("test")
	defer b.Close()

	hits := make(chan struct{}, 1)
	sub, err := b.Subscribe("responses/a", func(Event) { hits <- struct{}{} })
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count("responses/a"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.Count("responses/a"))
	assert.NotContains(t, b.TopicNames(), "responses/a")

	require.NoError(t, b.Publish(context.Background(), "responses/a", "function-response", nil))
	select {
	case <-hits:
		t.Fatal("handler ran after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := New("test")
	defer b.Close()

	hits := make(chan int, 2)
	_, err := b.Subscribe("t", func(ev Event) {
		var p payload
		_ = ev.Decode(&p)
		if p.N == 0 {
			panic("boom")
		}
		hits <- p.N
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "t", "x", payload{N: 0}))
	require.NoError(t, b.Publish(context.Background(), "t", "x", payload{N: 1}))

	select {
	case n := <-hits:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber stopped after panic")
	}
}

func TestClosedBus(t *testing.T) {
	b := New("test")
	_, err := b.Subscribe("t", func(Event) {})
	require.NoError(t, err)
	b.Close()

	assert.Equal(t, 0, b.Count("t"))
	_, err = b.Subscribe("t", func(Event) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), "t", "x", nil), ErrClosed)
}

func TestPublishHonoursContext(t *testing.T) {
	b := New("test")
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, "t", "x", nil), context.Canceled)
	assert.ErrorIs(t, b.Publish(context.Background(), "", "x", nil), ErrEmptyTopic)
}
