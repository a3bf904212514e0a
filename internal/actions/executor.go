// Package actions executes typed page commands against a dom.Page. Each
// execution takes a fresh snapshot, resolves its target, acts, and reports
// an Outcome; nothing panics out of Execute.
package actions

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/pagecontext"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
	"github.com/roelfdiedericks/voicenav/internal/resolver"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// DefaultSettleDelay is the pause between scrolling a target into view and
// acting on it.
const DefaultSettleDelay = 300 * time.Millisecond

// Outcome is the result of one execution
type Outcome struct {
	Success bool   // Whether the command did what was asked
	Message string // Human-readable summary, used for status notices
	Result  any    // Structured result (page context snapshots)
	Err     error  // Failure cause, nil on success
}

// Error returns the failure text, or "" on success
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func ok(msg string) Outcome { return Outcome{Success: true, Message: msg} }

func failed(err error) Outcome { return Outcome{Message: err.Error(), Err: err} }

// Executor runs commands on one page
type Executor struct {
	page      dom.Page
	resolver  *resolver.Resolver
	fields    *resolver.FieldResolver
	extractor *pagecontext.Extractor
	navigator Navigator
	notifier  Notifier
	settle    time.Duration
}

// Option configures an Executor
type Option func(*Executor)

// WithResolver replaces the element resolver
func WithResolver(r *resolver.Resolver) Option {
	return func(e *Executor) { e.resolver = r }
}

// WithFieldResolver replaces the form field resolver
func WithFieldResolver(r *resolver.FieldResolver) Option {
	return func(e *Executor) { e.fields = r }
}

// WithExtractor replaces the page context extractor
func WithExtractor(x *pagecontext.Extractor) Option {
	return func(e *Executor) { e.extractor = x }
}

// WithNavigator routes same-origin navigation through a client-side router
func WithNavigator(n Navigator) Option {
	return func(e *Executor) { e.navigator = n }
}

// WithNotifier receives a Notice after every mutating command
func WithNotifier(n Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

// WithSettleDelay sets the pause after scrolling a target into view.
// Negative values are treated as zero.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d < 0 {
			d = 0
		}
		e.settle = d
	}
}

// NewExecutor creates an executor for page
func NewExecutor(page dom.Page, opts ...Option) *Executor {
	e := &Executor{
		page:      page,
		resolver:  resolver.Default(),
		fields:    resolver.NewFieldResolver(),
		extractor: &pagecontext.Extractor{},
		notifier:  LogNotifier{},
		settle:    DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page returns the page the executor acts on
func (e *Executor) Page() dom.Page { return e.page }

// Execute runs cmd. Mutating commands also produce a Notice.
func (e *Executor) Execute(ctx context.Context, cmd protocol.Command) (out Outcome) {
	start := time.Now()
	fn := cmd.Function()

	defer func() {
		if r := recover(); r != nil {
			L_error("actions: panic during execution", "function", fn, "panic", r, "stack", string(debug.Stack()))
			out = failed(fmt.Errorf("%s failed: %v", fn, r))
		}
		if out.Success {
			L_debug("actions: executed", "function", fn, "message", out.Message, "elapsed", time.Since(start))
		} else {
			L_warn("actions: failed", "function", fn, "error", out.Err)
		}
		if fn.Kind() == protocol.KindMutating && e.notifier != nil {
			e.notifier.Notify(ctx, Notice{
				RequestID: RequestIDFrom(ctx),
				Function:  fn,
				Message:   out.Message,
				Success:   out.Success,
			})
		}
	}()

	switch c := cmd.(type) {
	case protocol.ScrollPage:
		return e.scrollPage(ctx, c)
	case protocol.ScrollToContent:
		return e.scrollToContent(ctx)
	case protocol.GoBackToTop:
		return e.scrollTop(ctx)
	case protocol.ClickElement:
		return e.click(ctx, c)
	case protocol.FillField:
		return e.fill(ctx, c)
	case protocol.ToggleElement:
		return e.toggle(ctx, c)
	case protocol.NavigateToPage:
		return e.navigate(ctx, c)
	case protocol.GetPageContext:
		return e.pageContext(ctx, c)
	default:
		return failed(fmt.Errorf("%w: %T", protocol.ErrUnknownFunction, cmd))
	}
}

func (e *Executor) pageContext(ctx context.Context, c protocol.GetPageContext) Outcome {
	doc, err := e.page.Snapshot(ctx)
	if err != nil {
		return failed(fmt.Errorf("snapshot: %w", err))
	}
	snap := e.extractor.Extract(doc, protocol.ParseDetailLevel(string(c.DetailLevel)))
	return Outcome{Success: true, Message: "page context captured", Result: snap}
}

// settleDelay waits for layout to settle after a scroll
func (e *Executor) settleDelay(ctx context.Context) error {
	if e.settle <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.settle)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reveal scrolls el into view and waits for the page to settle
func (e *Executor) reveal(ctx context.Context, el *dom.Element) error {
	if err := e.page.ScrollIntoView(ctx, el, dom.AlignCenter); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return e.settleDelay(ctx)
}
