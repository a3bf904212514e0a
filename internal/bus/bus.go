// Package bus provides topic-based publish/subscribe for voicenav.
// A Bus is an in-process Transport; the realtime package bridges it over
// websockets so webhook and page runtimes can live in different processes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Event is a message delivered to subscribers of a topic
type Event struct {
	Topic     string          `json:"topic"`
	Name      string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
}

// Decode unmarshals the payload into v
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s on %s has no payload", e.Name, e.Topic)
	}
	return json.Unmarshal(e.Payload, v)
}

// Handler processes an event (fire and forget)
type Handler func(Event)

// Subscription is released with Unsubscribe. Calling it more than once is a no-op.
type Subscription interface {
	Unsubscribe()
}

// Transport is the pub/sub contract shared by the in-process bus and the
// websocket client.
type Transport interface {
	Subscribe(topic string, handler Handler) (Subscription, error)
	Publish(ctx context.Context, topic, event string, payload any) error
}

type busError string

func (e busError) Error() string { return string(e) }

const (
	ErrClosed       busError = "bus closed"
	ErrEmptyTopic   busError = "empty topic"
	ErrMailboxFull  busError = "subscriber mailbox full"
	DefaultMailbox           = 100
)

// Bus is an in-process Transport. Each subscription has its own mailbox and
// delivery goroutine, so a subscriber sees events in publish order and a slow
// subscriber never blocks publishers.
type Bus struct {
	source  string
	mailbox int

	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool

	nextID atomic.Uint64
}

// New creates a bus. source is stamped on events it publishes.
func New(source string) *Bus {
	return &Bus{
		source:  source,
		mailbox: DefaultMailbox,
		subs:    make(map[string][]*subscription),
	}
}

type subscription struct {
	id      uint64
	topic   string
	handler Handler
	bus     *Bus
	mailbox chan Event
	done    chan struct{}
	once    sync.Once
}

// Subscribe registers handler for topic.
func (b *Bus) Subscribe(topic string, handler Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	sub := &subscription{
		id:      b.nextID.Add(1),
		topic:   topic,
		handler: handler,
		bus:     b,
		mailbox: make(chan Event, b.mailbox),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go sub.run()
	L_trace("bus: subscribed", "topic", topic, "subscriptionID", sub.id)
	return sub, nil
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.mailbox:
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(ev)
		}
	}
}

func (s *subscription) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			L_error("bus: handler panic", "topic", s.topic, "event", ev.Name, "subscriptionID", s.id, "panic", r)
		}
	}()
	s.handler(ev)
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
		L_trace("bus: unsubscribed", "topic", s.topic, "subscriptionID", s.id)
	})
}

func (b *Bus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.topic]
	for i, sub := range subs {
		if sub == s {
			b.subs[s.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[s.topic]) == 0 {
		delete(b.subs, s.topic)
	}
}

// Publish marshals payload and delivers it to every subscriber of topic.
// Having no subscribers is not an error.
func (b *Bus) Publish(ctx context.Context, topic, event string, payload any) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("bus: marshal %s payload: %w", event, err)
		}
		raw = data
	}

	return b.PublishEvent(Event{
		Topic:     topic,
		Name:      event,
		Payload:   raw,
		Timestamp: time.Now(),
		Source:    b.source,
	})
}

// PublishEvent delivers an already-built event, keeping its Source.
func (b *Bus) PublishEvent(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	subs := b.subs[ev.Topic]
	if len(subs) == 0 {
		L_debug("bus: event published (no subscribers)", "topic", ev.Topic, "event", ev.Name)
		return nil
	}

	L_debug("bus: event published", "topic", ev.Topic, "event", ev.Name, "subscribers", len(subs), "source", ev.Source)
	for _, sub := range subs {
		select {
		case sub.mailbox <- ev:
		default:
			L_warn("bus: event dropped", "topic", ev.Topic, "event", ev.Name, "subscriptionID", sub.id, "error", ErrMailboxFull)
		}
	}
	return nil
}

// Count returns the number of subscribers for a topic
func (b *Bus) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Topics returns subscriber counts per topic
func (b *Bus) Topics() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]int, len(b.subs))
	for topic, subs := range b.subs {
		out[topic] = len(subs)
	}
	return out
}

// TopicNames returns all topics with active subscriptions
func (b *Bus) TopicNames() []string {
	topics := b.Topics()
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every subscription and rejects further use.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}
