package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/voicenav/internal/bus"
	"github.com/roelfdiedericks/voicenav/internal/metrics"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

const (
	writeWait           = 10 * time.Second
	maxFrameSize        = 1 << 20
	DefaultSendQueue    = 64
	DefaultPingInterval = 30 * time.Second
)

// Broker is the bus a hub serves. PublishEvent keeps the remote source.
type Broker interface {
	bus.Transport
	PublishEvent(ev bus.Event) error
}

// Hub accepts websocket peers and subscribes/publishes on the broker on
// their behalf.
type Hub struct {
	broker    Broker
	upgrader  websocket.Upgrader
	sendQueue int
	ping      time.Duration

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool
}

// NewHub creates a hub over b
func NewHub(b Broker) *Hub {
	return &Hub{
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// pages connect from arbitrary origins; access is gated by the api key
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendQueue: DefaultSendQueue,
		ping:      DefaultPingInterval,
		peers:     make(map[string]*peer),
	}
}

// SetSendQueue bounds each peer's outgoing queue
func (h *Hub) SetSendQueue(n int) {
	if n > 0 {
		h.sendQueue = n
	}
}

// SetPingInterval sets the keepalive period. A peer that stays silent for
// two periods is dropped.
func (h *Hub) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.ping = d
	}
}

func (h *Hub) pongWait() time.Duration { return 2 * h.ping }

// Peers returns the number of connected peers
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects every peer
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.close("hub closing")
	}
}

type peer struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs map[string]bus.Subscription
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_warn("realtime: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := &peer{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan Frame, h.sendQueue),
		done: make(chan struct{}),
		subs: make(map[string]bus.Subscription),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.peers[p.id] = p
	h.mu.Unlock()

	L_info("realtime: peer connected", "peer", p.id, "remote", r.RemoteAddr)
	go p.writeLoop()
	p.readLoop()
}

// close stops the peer once; readLoop does the cleanup when its read fails
func (p *peer) close(reason string) {
	p.once.Do(func() {
		L_debug("realtime: closing peer", "peer", p.id, "reason", reason)
		close(p.done)
		p.conn.Close()
	})
}

func (p *peer) cleanup() {
	p.close("disconnected")

	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}

	p.hub.mu.Lock()
	delete(p.hub.peers, p.id)
	p.hub.mu.Unlock()
	L_info("realtime: peer disconnected", "peer", p.id, "released", len(subs))
}

// enqueue never blocks; a peer that cannot keep up is dropped
func (p *peer) enqueue(f Frame) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.send <- f:
	case <-p.done:
	default:
		L_warn("realtime: send queue full, dropping peer", "peer", p.id, "topic", f.Topic)
		metrics.MetricInc("realtime", "slow_peer_drops")
		p.close("send queue full")
	}
}

func (p *peer) readLoop() {
	defer p.cleanup()

	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(p.hub.pongWait()))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.hub.pongWait()))
	})

	for {
		var f Frame
		if err := p.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				L_warn("realtime: read error", "peer", p.id, "error", err)
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(p.hub.pongWait()))
		p.handle(f)
	}
}

func (p *peer) handle(f Frame) {
	switch f.Type {
	case FrameSubscribe:
		p.subscribe(f)
	case FrameUnsubscribe:
		p.mu.Lock()
		sub, ok := p.subs[f.Topic]
		delete(p.subs, f.Topic)
		p.mu.Unlock()
		if ok {
			sub.Unsubscribe()
			L_debug("realtime: peer unsubscribed", "peer", p.id, "topic", f.Topic)
		}
	case FramePublish:
		ev := f.busEvent()
		ev.Source = p.id
		if err := p.hub.broker.PublishEvent(ev); err != nil {
			p.fail(f, err.Error())
		}
	default:
		p.fail(f, "unknown frame type")
	}
}

func (p *peer) subscribe(f Frame) {
	if f.Topic == "" {
		p.fail(f, bus.ErrEmptyTopic.Error())
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs == nil {
		return
	}
	if _, ok := p.subs[f.Topic]; ok {
		return
	}
	sub, err := p.hub.broker.Subscribe(f.Topic, func(ev bus.Event) {
		p.enqueue(eventFrame(ev))
	})
	if err != nil {
		p.enqueue(Frame{Type: FrameError, Topic: f.Topic, Ref: f.Ref, Error: err.Error()})
		return
	}
	p.subs[f.Topic] = sub
	L_debug("realtime: peer subscribed", "peer", p.id, "topic", f.Topic)
}

func (p *peer) fail(f Frame, msg string) {
	L_debug("realtime: frame rejected", "peer", p.id, "type", f.Type, "error", msg)
	p.enqueue(Frame{Type: FrameError, Topic: f.Topic, Ref: f.Ref, Error: msg})
}

func (p *peer) writeLoop() {
	ticker := time.NewTicker(p.hub.ping)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case f := <-p.send:
			data, err := json.Marshal(f)
			if err != nil {
				L_error("realtime: marshal frame", "peer", p.id, "error", err)
				continue
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				L_debug("realtime: write failed", "peer", p.id, "error", err)
				p.close("write failed")
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close("ping failed")
				return
			}
		}
	}
}
