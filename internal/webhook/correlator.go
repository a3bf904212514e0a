// Package webhook receives tool calls from the voice orchestrator, forwards
// them to the page owning the call's session, and for read calls waits for
// the page's answer.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/voicenav/internal/bus"
	"github.com/roelfdiedericks/voicenav/internal/metrics"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
	"github.com/roelfdiedericks/voicenav/internal/session"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Defaults
const (
	DefaultResponseTimeout    = 5 * time.Second
	DefaultMaxConcurrentCalls = 8

	// TimeoutResult is returned when the page does not answer a read call in time
	TimeoutResult = "timed out waiting for page context"
)

// Config tunes a Correlator
type Config struct {
	ResponseTimeout    time.Duration
	MaxConcurrentCalls int
	SkipGlobal         bool // publish only on the session topic
}

// Correlator dispatches tool calls and matches responses by request id
type Correlator struct {
	transport bus.Transport
	cfgMu     sync.RWMutex
	cfg       Config
	metrics   *metrics.Manager
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]chan protocol.FunctionResponse
}

// NewCorrelator creates a correlator over transport
func NewCorrelator(t bus.Transport, cfg Config) *Correlator {
	return &Correlator{
		transport: t,
		cfg:       cfg.withDefaults(),
		metrics:   metrics.GetInstance(),
		now:       time.Now,
		pending:   make(map[string]chan protocol.FunctionResponse),
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.MaxConcurrentCalls < 1 {
		cfg.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	return cfg
}

// Reconfigure swaps the settings used by batches that start afterwards
func (c *Correlator) Reconfigure(cfg Config) {
	cfg = cfg.withDefaults()
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
	L_info("webhook: reconfigured", "timeout", cfg.ResponseTimeout, "maxConcurrent", cfg.MaxConcurrentCalls, "skipGlobal", cfg.SkipGlobal)
}

// Settings returns the current configuration
func (c *Correlator) Settings() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

// SetMetrics replaces the metrics manager
func (c *Correlator) SetMetrics(m *metrics.Manager) { c.metrics = m }

// Pending returns how many read calls are waiting for a response
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Announce publishes session-init for call on the discovery topic so the
// page that owns the session can bind the call id.
func (c *Correlator) Announce(ctx context.Context, call *Call) {
	if call == nil || call.ID == "" {
		return
	}
	init := protocol.SessionInit{
		CallID:    call.ID,
		SessionID: call.MetadataSessionID(),
		Timestamp: protocol.Millis(c.now()),
	}
	if err := c.transport.Publish(ctx, protocol.TopicDiscovery, protocol.EventSessionInit, init); err != nil {
		L_warn("webhook: session-init publish failed", "callId", call.ID, "error", err)
		return
	}
	L_debug("webhook: session-init published", "callId", call.ID, "session", init.SessionID)
}

// HandleToolCalls processes a batch concurrently and returns one result per
// tool call, in request order.
func (c *Correlator) HandleToolCalls(ctx context.Context, call *Call, toolCalls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(toolCalls))
	requestIDs := c.requestIDs(toolCalls)
	sessionID := call.SessionID()

	sem := make(chan struct{}, c.Settings().MaxConcurrentCalls)
	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func(i int, tc ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.handleOne(ctx, sessionID, requestIDs[i], tc)
		}(i, tc)
	}
	wg.Wait()
	return results
}

// requestIDs derives one id per tool call; collisions within the batch get
// a random suffix.
func (c *Correlator) requestIDs(toolCalls []ToolCall) []string {
	now := c.now()
	ids := make([]string, len(toolCalls))
	seen := make(map[string]bool, len(toolCalls))
	for i, tc := range toolCalls {
		id := protocol.NewRequestID(tc.ID, now)
		if seen[id] {
			id = id + "-" + uuid.New().String()[:8]
		}
		seen[id] = true
		ids[i] = id
	}
	return ids
}

func errResult(tc ToolCall, err error) ToolResult {
	return ToolResult{ToolCallID: tc.ID, Error: err.Error()}
}

func (c *Correlator) handleOne(ctx context.Context, sessionID, requestID string, tc ToolCall) (res ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			L_error("webhook: panic handling tool call", "toolCall", tc.ID, "panic", r)
			res = ToolResult{ToolCallID: tc.ID, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	name := tc.Function.Name
	c.metrics.AddCounter("webhook", "tool_calls", 1)
	if name == "" {
		L_warn("webhook: tool call without function name", "toolCall", tc.ID)
		return errResult(tc, protocol.ErrNoFunctionName)
	}
	fn, ok := protocol.LookupFunction(name)
	if !ok {
		L_warn("webhook: unknown function", "toolCall", tc.ID, "function", name)
		return errResult(tc, fmt.Errorf("%w: %s", protocol.ErrUnknownFunction, name))
	}
	if !session.Valid(sessionID) {
		L_warn("webhook: no session for tool call", "toolCall", tc.ID, "function", name)
		return errResult(tc, protocol.ErrSessionMissing)
	}
	params, err := tc.Function.Params()
	if err == nil {
		_, err = protocol.ParseCommand(name, params)
	}
	if err != nil {
		L_warn("webhook: invalid arguments", "toolCall", tc.ID, "function", name, "error", err)
		return errResult(tc, err)
	}

	fc := protocol.FunctionCall{
		FunctionName: name,
		Parameters:   params,
		RequestID:    requestID,
		SessionID:    sessionID,
		ToolCallID:   tc.ID,
		Timestamp:    protocol.Millis(c.now()),
	}
	L_info("webhook: tool call", "toolCall", tc.ID, "function", name, "session", sessionID, "request", requestID)

	if fn.Kind() == protocol.KindRead {
		return c.read(ctx, tc, fc)
	}
	if err := c.publish(ctx, fc); err != nil {
		return errResult(tc, err)
	}
	return ToolResult{ToolCallID: tc.ID, Result: fmt.Sprintf("%s command queued for execution", name)}
}

// publish sends fc on the session topic and, unless disabled, the global
// topic. It fails only when no topic accepted the call.
func (c *Correlator) publish(ctx context.Context, fc protocol.FunctionCall) error {
	topics := []string{protocol.CommandTopic(fc.SessionID)}
	if !c.Settings().SkipGlobal {
		topics = append(topics, protocol.TopicGlobalCommands)
	}

	var errs []error
	for _, topic := range topics {
		if err := c.transport.Publish(ctx, topic, protocol.EventFunctionCall, fc); err != nil {
			L_error("webhook: publish failed", "topic", topic, "request", fc.RequestID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
		}
	}
	if len(errs) == len(topics) {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, errors.Join(errs...))
	}
	return nil
}

// register reserves the single pending slot for requestID
func (c *Correlator) register(requestID string) (chan protocol.FunctionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[requestID]; exists {
		return nil, fmt.Errorf("request %s is already pending", requestID)
	}
	ch := make(chan protocol.FunctionResponse, 1)
	c.pending[requestID] = ch
	return ch, nil
}

func (c *Correlator) release(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// deliver hands a response to its waiter; unmatched or late responses are dropped
func (c *Correlator) deliver(ev bus.Event) {
	if ev.Name != protocol.EventFunctionResponse {
		return
	}
	var resp protocol.FunctionResponse
	if err := ev.Decode(&resp); err != nil {
		L_warn("webhook: bad function response", "topic", ev.Topic, "error", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	c.mu.Unlock()
	if !ok {
		L_trace("webhook: unmatched response dropped", "request", resp.RequestID)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// read subscribes for the response, publishes the call, and waits for the
// matching response, the timeout, or cancellation. The subscription is
// released on every path.
func (c *Correlator) read(ctx context.Context, tc ToolCall, fc protocol.FunctionCall) ToolResult {
	start := time.Now()
	ch, err := c.register(fc.RequestID)
	if err != nil {
		return errResult(tc, err)
	}
	defer c.release(fc.RequestID)

	sub, err := c.transport.Subscribe(protocol.ResponseTopic(fc.SessionID), c.deliver)
	if err != nil {
		L_error("webhook: subscribe for response failed", "request", fc.RequestID, "error", err)
		return errResult(tc, fmt.Errorf("%w: %v", protocol.ErrTransport, err))
	}
	defer sub.Unsubscribe()

	if err := c.publish(ctx, fc); err != nil {
		return errResult(tc, err)
	}

	timeout := c.Settings().ResponseTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		c.metrics.RecordDuration("webhook", "read_latency", time.Since(start))
		if resp.Error != "" || !resp.Success {
			msg := resp.Error
			if msg == "" {
				msg = "page reported failure"
			}
			L_warn("webhook: page returned error", "request", fc.RequestID, "error", msg)
			return ToolResult{ToolCallID: tc.ID, Error: msg}
		}
		L_debug("webhook: response received", "request", fc.RequestID, "elapsed", time.Since(start))
		return ToolResult{ToolCallID: tc.ID, Result: resp.Result}
	case <-timer.C:
		c.metrics.AddCounter("webhook", "read_timeouts", 1)
		L_warn("webhook: timed out waiting for page", "request", fc.RequestID, "session", fc.SessionID, "timeout", timeout)
		return ToolResult{ToolCallID: tc.ID, Error: TimeoutResult}
	case <-ctx.Done():
		L_debug("webhook: request cancelled while waiting", "request", fc.RequestID)
		return errResult(tc, fmt.Errorf("request cancelled: %w", ctx.Err()))
	}
}
