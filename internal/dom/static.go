package dom

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// DispatchedEvent is a DOM event fired by a StaticPage action
type DispatchedEvent struct {
	Type   string
	Target *html.Node
}

// Fetcher loads the markup for a full page navigation
type Fetcher func(ctx context.Context, url string) (io.ReadCloser, error)

// StaticPage is an in-memory Page over a parsed tree. It has no layout
// engine: scroll positions are estimated from document order, and events
// are recorded instead of running scripts.
type StaticPage struct {
	mu       sync.Mutex
	url      string
	root     *html.Node
	viewport Viewport
	focused  *html.Node
	events   []DispatchedEvent
	fetch    Fetcher
}

// NewStaticPage parses src as the page at pageURL. The viewport defaults to
// 1280x800 with a 4000px document.
func NewStaticPage(src, pageURL string) (*StaticPage, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return &StaticPage{
		url:  pageURL,
		root: root,
		viewport: Viewport{
			Width:        1280,
			Height:       800,
			ScrollHeight: 4000,
		},
	}, nil
}

// SetFetcher enables full page loads
func (p *StaticPage) SetFetcher(f Fetcher) {
	p.mu.Lock()
	p.fetch = f
	p.mu.Unlock()
}

// SetViewport replaces the viewport
func (p *StaticPage) SetViewport(v Viewport) {
	p.mu.Lock()
	p.viewport = v
	p.mu.Unlock()
}

// Focus gives el keyboard focus
func (p *StaticPage) Focus(el *Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.focused != nil {
		removeAttr(p.focused, focusMarker)
	}
	p.focused = el.node
	setAttr(el.node, focusMarker, "1")
	p.record("focus", el.node)
}

// Events returns the events dispatched so far
func (p *StaticPage) Events() []DispatchedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DispatchedEvent(nil), p.events...)
}

// EventsFor returns the event types dispatched on n, in order
func (p *StaticPage) EventsFor(n *html.Node) []string {
	var out []string
	for _, ev := range p.Events() {
		if ev.Target == n {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (p *StaticPage) record(typ string, n *html.Node) {
	p.events = append(p.events, DispatchedEvent{Type: typ, Target: n})
}

func (p *StaticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *StaticPage) Snapshot(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc := NewDocument(p.root, p.url)
	doc.SetViewport(p.viewport)
	return doc, nil
}

func (p *StaticPage) Viewport(ctx context.Context) (Viewport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, ctx.Err()
}

func (p *StaticPage) ScrollTo(ctx context.Context, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport.ScrollY = p.viewport.ClampY(y)
	return nil
}

// ScrollIntoView estimates the element's offset from its position in
// document order.
func (p *StaticPage) ScrollIntoView(ctx context.Context, el *Element, align Align) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.owns(el); err != nil {
		return err
	}
	total := len(el.doc.elements)
	if total == 0 {
		return nil
	}
	offset := float64(el.index) / float64(total) * p.viewport.ScrollHeight
	if align != AlignStart {
		offset -= p.viewport.Height / 2
	}
	p.viewport.ScrollY = p.viewport.ClampY(offset)
	return nil
}

// Click records a click. Checkboxes and radios flip their checked state.
func (p *StaticPage) Click(ctx context.Context, el *Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.owns(el); err != nil {
		return err
	}
	if el.Tag() == "input" {
		switch strings.ToLower(el.Attr("type")) {
		case "checkbox":
			if el.HasAttr("checked") {
				removeAttr(el.node, "checked")
			} else {
				setAttr(el.node, "checked", "")
			}
			p.record("input", el.node)
			p.record("change", el.node)
		case "radio":
			setAttr(el.node, "checked", "")
			p.record("change", el.node)
		}
	}
	p.record("click", el.node)
	return nil
}

// SetValue writes the value attribute (or textarea body) and records input
// and change events.
func (p *StaticPage) SetValue(ctx context.Context, el *Element, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.owns(el); err != nil {
		return err
	}
	switch el.Tag() {
	case "textarea":
		for c := el.node.FirstChild; c != nil; {
			next := c.NextSibling
			el.node.RemoveChild(c)
			c = next
		}
		el.node.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	case "input", "select":
		setAttr(el.node, "value", value)
	default:
		return fmt.Errorf("element <%s> is not a form control", el.Tag())
	}
	p.record("input", el.node)
	p.record("change", el.node)
	return nil
}

// Load fetches and replaces the document. Without a Fetcher only the
// address changes.
func (p *StaticPage) Load(ctx context.Context, target string) error {
	p.mu.Lock()
	fetch := p.fetch
	p.mu.Unlock()

	if _, err := url.Parse(target); err != nil {
		return err
	}
	var root *html.Node
	if fetch != nil {
		rc, err := fetch(ctx, target)
		if err != nil {
			return fmt.Errorf("load %s: %w", target, err)
		}
		defer rc.Close()
		root, err = html.Parse(rc)
		if err != nil {
			return fmt.Errorf("parse %s: %w", target, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = target
	if root != nil {
		p.root = root
		p.focused = nil
		p.viewport.ScrollY = 0
	}
	return nil
}

func (p *StaticPage) owns(el *Element) error {
	if el == nil {
		return fmt.Errorf("nil element")
	}
	for n := el.node; n != nil; n = n.Parent {
		if n == p.root {
			return nil
		}
	}
	return fmt.Errorf("element <%s> is not part of the current page", el.Tag())
}
