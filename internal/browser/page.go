package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/metrics"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Page is a browser tab seen through dom.Page. Snapshots are taken from
// the serialized DOM after annotateJS runs; actions reach live nodes by
// their data-vx-id handle.
type Page struct {
	page       *rod.Page
	policy     URLPolicy
	timeout    time.Duration
	stableWait time.Duration

	mu      sync.Mutex
	lastURL string
}

var _ dom.Page = (*Page)(nil)

func newPage(rp *rod.Page, cfg Config, policy URLPolicy) *Page {
	return &Page{
		page:       rp,
		policy:     policy,
		timeout:    cfg.ResolveTimeout(),
		stableWait: cfg.StableWait,
	}
}

// pageState is what annotateJS and viewportJS return
type pageState struct {
	dom.Viewport
	Href string `json:"href"`
}

func (p *Page) with(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.page.Context(ctx), cancel
}

func (p *Page) remember(u string) {
	if u == "" {
		return
	}
	p.mu.Lock()
	p.lastURL = u
	p.mu.Unlock()
}

func (p *Page) URL() string {
	if info, err := p.page.Info(); err == nil && info.URL != "" {
		p.remember(info.URL)
		return info.URL
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastURL
}

func (p *Page) state(ctx context.Context, js string) (pageState, error) {
	rp, cancel := p.with(ctx)
	defer cancel()

	var st pageState
	res, err := rp.Eval(js)
	if err != nil {
		return st, fmt.Errorf("browser: eval: %w", err)
	}
	if err := res.Value.Unmarshal(&st); err != nil {
		return st, fmt.Errorf("browser: decode page state: %w", err)
	}
	p.remember(st.Href)
	return st, nil
}

func (p *Page) Snapshot(ctx context.Context) (*dom.Document, error) {
	start := time.Now()
	st, err := p.state(ctx, annotateJS)
	if err != nil {
		return nil, err
	}

	rp, cancel := p.with(ctx)
	defer cancel()
	src, err := rp.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read html: %w", err)
	}

	doc, err := dom.ParseString(src, st.Href)
	if err != nil {
		return nil, fmt.Errorf("browser: parse html: %w", err)
	}
	doc.SetViewport(st.Viewport)
	metrics.MetricSince("browser", "snapshot", start)
	L_trace("browser: snapshot", "url", st.Href, "elements", len(doc.Elements()), "bytes", len(src), "elapsed", time.Since(start))
	return doc, nil
}

func (p *Page) Viewport(ctx context.Context) (dom.Viewport, error) {
	st, err := p.state(ctx, viewportJS)
	return st.Viewport, err
}

func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	rp, cancel := p.with(ctx)
	defer cancel()
	if _, err := rp.Eval(scrollToJS, y); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

// live finds the node behind a snapshot element
func (p *Page) live(rp *rod.Page, el *dom.Element) (*rod.Element, error) {
	if el == nil {
		return nil, fmt.Errorf("nil element")
	}
	handle := el.Handle()
	if handle == "" {
		return nil, fmt.Errorf("element <%s> has no handle; take a fresh snapshot", el.Tag())
	}
	found, live, err := rp.Has(fmt.Sprintf("[%s=%q]", dom.HandleAttr, handle))
	if err != nil {
		return nil, fmt.Errorf("browser: find element: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("element <%s> is no longer on the page", el.Tag())
	}
	return live, nil
}

func (p *Page) onElement(ctx context.Context, el *dom.Element, what, js string, args ...any) error {
	rp, cancel := p.with(ctx)
	defer cancel()
	live, err := p.live(rp, el)
	if err != nil {
		return err
	}
	if _, err := live.Eval(js, args...); err != nil {
		return fmt.Errorf("browser: %s: %w", what, err)
	}
	return nil
}

func (p *Page) ScrollIntoView(ctx context.Context, el *dom.Element, align dom.Align) error {
	block := "center"
	if align == dom.AlignStart {
		block = "start"
	}
	return p.onElement(ctx, el, "scroll into view", scrollIntoViewJS, block)
}

func (p *Page) Click(ctx context.Context, el *dom.Element) error {
	return p.onElement(ctx, el, "click", clickJS)
}

func (p *Page) SetValue(ctx context.Context, el *dom.Element, value string) error {
	switch el.Tag() {
	case "input", "textarea", "select":
	default:
		return fmt.Errorf("element <%s> is not a form control", el.Tag())
	}
	return p.onElement(ctx, el, "set value", setValueJS, value)
}

// Load navigates the tab and waits for the load event and a quiet DOM
func (p *Page) Load(ctx context.Context, target string) error {
	if err := p.policy.Validate(target); err != nil {
		return err
	}
	rp, cancel := p.with(ctx)
	defer cancel()

	start := time.Now()
	if err := rp.Navigate(target); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", target, err)
	}
	if err := rp.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", target, err)
	}
	p.settle(rp)
	p.remember(target)
	metrics.MetricSince("browser", "load", start)
	L_debug("browser: page loaded", "url", target, "elapsed", time.Since(start))
	return nil
}

// Navigate changes route in-page; see Config.ClientRouting
func (p *Page) Navigate(ctx context.Context, path string) error {
	rp, cancel := p.with(ctx)
	defer cancel()
	if _, err := rp.Eval(pushStateJS, path); err != nil {
		return fmt.Errorf("browser: client navigate %s: %w", path, err)
	}
	p.settle(rp)
	return nil
}

func (p *Page) settle(rp *rod.Page) {
	if p.stableWait <= 0 {
		return
	}
	if err := rp.WaitDOMStable(p.stableWait, 0); err != nil {
		L_debug("browser: dom did not settle", "error", err)
	}
}

// Close closes the tab
func (p *Page) Close() error {
	return p.page.Close()
}
