// Package runtime is the page side of the command channel: it listens for
// function calls addressed to its session, executes each one once on its
// page, and publishes the response.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/actions"
	"github.com/roelfdiedericks/voicenav/internal/bus"
	"github.com/roelfdiedericks/voicenav/internal/metrics"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
	"github.com/roelfdiedericks/voicenav/internal/session"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Config tunes a Runtime. The zero value serializes commands with default
// queue and dedupe sizes.
type Config struct {
	Concurrent bool // run commands as they arrive instead of one at a time
	QueueSize  int
	DedupeSize int
}

const defaultQueueSize = 100

// Runtime binds one page executor to one session identity
type Runtime struct {
	transport bus.Transport
	exec      *actions.Executor
	identity  *session.Identity
	dedupe    *session.Dedupe
	metrics   *metrics.Manager
	cfg       Config

	mu      sync.Mutex
	subs    []bus.Subscription
	running bool

	queue  chan protocol.FunctionCall
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a runtime. Call Start to begin listening.
func New(t bus.Transport, exec *actions.Executor, id *session.Identity, cfg Config) *Runtime {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Runtime{
		transport: t,
		exec:      exec,
		identity:  id,
		dedupe:    session.NewDedupe(cfg.DedupeSize),
		metrics:   metrics.GetInstance(),
		cfg:       cfg,
	}
}

// SetMetrics replaces the metrics manager (before Start)
func (r *Runtime) SetMetrics(m *metrics.Manager) { r.metrics = m }

// Identity returns the identity the runtime answers to
func (r *Runtime) Identity() *session.Identity { return r.identity }

// Start subscribes to the session, global and discovery topics
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("runtime already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	topics := []struct {
		topic   string
		handler bus.Handler
	}{
		{protocol.CommandTopic(r.identity.ID()), r.handleCall},
		{protocol.TopicGlobalCommands, r.handleCall},
		{protocol.TopicDiscovery, r.handleDiscovery},
	}
	for _, t := range topics {
		sub, err := r.transport.Subscribe(t.topic, t.handler)
		if err != nil {
			r.releaseLocked()
			r.cancel()
			return fmt.Errorf("subscribe %s: %w", t.topic, err)
		}
		r.subs = append(r.subs, sub)
	}

	if !r.cfg.Concurrent {
		r.queue = make(chan protocol.FunctionCall, r.cfg.QueueSize)
		r.wg.Add(1)
		go r.worker()
	}
	r.running = true
	L_info("runtime: listening", "session", r.identity.ID(), "serialized", !r.cfg.Concurrent)
	return nil
}

// Stop releases every subscription and waits for in-flight commands
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.releaseLocked()
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	L_info("runtime: stopped", "session", r.identity.ID())
}

func (r *Runtime) releaseLocked() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *Runtime) handleDiscovery(ev bus.Event) {
	if ev.Name != protocol.EventSessionInit {
		return
	}
	var init protocol.SessionInit
	if err := ev.Decode(&init); err != nil {
		L_warn("runtime: bad session-init", "error", err)
		return
	}
	if init.SessionID != r.identity.ID() {
		L_trace("runtime: session-init for another session", "callId", init.CallID, "session", init.SessionID)
		return
	}
	if !r.identity.Bind(init.CallID) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	sub, err := r.transport.Subscribe(protocol.CommandTopic(init.CallID), r.handleCall)
	if err != nil {
		L_error("runtime: subscribe call topic failed", "callId", init.CallID, "error", err)
		return
	}
	r.subs = append(r.subs, sub)
	L_info("runtime: call bound", "session", r.identity.ID(), "callId", init.CallID)
}

func (r *Runtime) handleCall(ev bus.Event) {
	if ev.Name != protocol.EventFunctionCall {
		return
	}
	var call protocol.FunctionCall
	if err := ev.Decode(&call); err != nil {
		L_warn("runtime: bad function call", "topic", ev.Topic, "error", err)
		return
	}
	if !r.identity.Owns(call.SessionID) {
		L_trace("runtime: call for another session", "request", call.RequestID, "session", call.SessionID)
		return
	}
	if !r.dedupe.First(call.RequestID) {
		r.metrics.AddCounter("runtime", "duplicates", 1)
		L_debug("runtime: duplicate call ignored", "request", call.RequestID, "topic", ev.Topic)
		return
	}

	if r.cfg.Concurrent {
		r.mu.Lock()
		if !r.running {
			r.mu.Unlock()
			L_debug("runtime: call after stop dropped", "request", call.RequestID)
			return
		}
		r.wg.Add(1)
		r.mu.Unlock()
		go func() {
			defer r.wg.Done()
			r.run(call)
		}()
		return
	}
	select {
	case r.queue <- call:
	case <-r.ctx.Done():
	}
}

func (r *Runtime) worker() {
	defer r.wg.Done()
	for {
		select {
		case call := <-r.queue:
			r.run(call)
		case <-r.ctx.Done():
			return
		}
	}
}

// run executes call and publishes its response
func (r *Runtime) run(call protocol.FunctionCall) {
	start := time.Now()
	resp, err := r.execute(r.ctx, call)

	r.metrics.AddCounter("runtime", "commands", 1)
	r.metrics.RecordOutcome("runtime", "functions", call.FunctionName)
	r.metrics.RecordDuration("runtime", "latency", time.Since(start))
	if resp.Success {
		r.metrics.RecordSuccess("runtime", "results")
	} else {
		r.metrics.AddCounter("runtime", "failures", 1)
		r.metrics.RecordFailure("runtime", "results", failureReason(err))
	}

	if err := r.transport.Publish(r.ctx, protocol.ResponseTopic(call.SessionID), protocol.EventFunctionResponse, resp); err != nil {
		L_error("runtime: publish response failed", "request", call.RequestID, "error", err)
	}
}

// Execute runs one call on the page and builds its response
func (r *Runtime) Execute(ctx context.Context, call protocol.FunctionCall) protocol.FunctionResponse {
	resp, _ := r.execute(ctx, call)
	return resp
}

func (r *Runtime) execute(ctx context.Context, call protocol.FunctionCall) (protocol.FunctionResponse, error) {
	resp := protocol.FunctionResponse{
		RequestID:    call.RequestID,
		FunctionName: call.FunctionName,
	}
	cmd, err := protocol.ParseCommand(call.FunctionName, call.Parameters)
	if err != nil {
		L_warn("runtime: rejected call", "request", call.RequestID, "function", call.FunctionName, "error", err)
		resp.Error = err.Error()
		return resp, err
	}

	L_debug("runtime: executing", "request", call.RequestID, "function", call.FunctionName)
	out := r.exec.Execute(actions.WithRequestID(ctx, call.RequestID), cmd)
	resp.Success = out.Success
	if !out.Success {
		resp.Error = out.Error()
		return resp, out.Err
	}
	resp.Result = out.Result
	if resp.Result == nil {
		resp.Result = out.Message
	}
	return resp, nil
}

var reasons = []protocol.Error{
	protocol.ErrResolution,
	protocol.ErrNavigationRejected,
	protocol.ErrInvalidParams,
	protocol.ErrUnknownFunction,
}

// failureReason buckets an execution error for metrics
func failureReason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return string(r)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "other"
}
