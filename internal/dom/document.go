// Package dom is a read-only model of a page's DOM: a parsed snapshot with
// CSS selector queries, text helpers and a visibility test, plus the Page
// contract that lets resolvers and executors act on live pages.
package dom

import (
	"bytes"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Document is a snapshot of a page. Elements are only meaningful within the
// Document that produced them.
type Document struct {
	root     *html.Node
	url      *url.URL
	viewport Viewport

	elements []*Element
	byNode   map[*html.Node]*Element
	body     *Element
	focused  *Element
	styles   []styleRule

	styleMu  sync.Mutex
	computed map[*html.Node]style
}

// Parse reads HTML and builds a Document for pageURL.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root, pageURL), nil
}

// ParseString is Parse for an in-memory string.
func ParseString(src, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(src), pageURL)
}

// NewDocument indexes an already parsed tree. The tree is not copied.
func NewDocument(root *html.Node, pageURL string) *Document {
	d := &Document{
		root:     root,
		byNode:   make(map[*html.Node]*Element),
		computed: make(map[*html.Node]style),
	}
	if u, err := url.Parse(pageURL); err == nil {
		d.url = u
	} else {
		d.url = &url.URL{}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			el := &Element{doc: d, node: n, index: len(d.elements)}
			d.elements = append(d.elements, el)
			d.byNode[n] = el
			switch n.Data {
			case "body":
				if d.body == nil {
					d.body = el
				}
			case "style":
				d.styles = append(d.styles, parseStyleRules(textOf(n, true))...)
			}
			if attr(n, focusMarker) == "1" {
				d.focused = el
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return d
}

// URL is the page address the snapshot was taken from
func (d *Document) URL() *url.URL { return d.url }

// Title returns the trimmed <title> text
func (d *Document) Title() string {
	if el := d.Query("title"); el != nil {
		return el.NormText()
	}
	return ""
}

// Root returns the <html> element
func (d *Document) Root() *Element {
	if len(d.elements) == 0 {
		return nil
	}
	return d.elements[0]
}

// Body returns the <body> element (nil for fragments without one)
func (d *Document) Body() *Element { return d.body }

// Elements returns every element in document order
func (d *Document) Elements() []*Element { return d.elements }

// Focused returns the element that had focus when the snapshot was taken
func (d *Document) Focused() *Element { return d.focused }

// Viewport returns the viewport recorded with the snapshot
func (d *Document) Viewport() Viewport { return d.viewport }

// SetViewport records the viewport the snapshot was taken with
func (d *Document) SetViewport(v Viewport) { d.viewport = v }

// Wrap returns the Element for a node of this document
func (d *Document) Wrap(n *html.Node) *Element {
	return d.byNode[n]
}

// QueryAll returns the elements matching sel in document order. An invalid
// selector matches nothing.
func (d *Document) QueryAll(sel string) []*Element {
	s := compile(sel)
	if s == nil {
		return nil
	}
	return d.wrapAll(s.MatchAll(d.root))
}

// Query returns the first element matching sel
func (d *Document) Query(sel string) *Element {
	s := compile(sel)
	if s == nil {
		return nil
	}
	return d.Wrap(s.MatchFirst(d.root))
}

// HTML renders the document back to markup
func (d *Document) HTML() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el := d.byNode[n]; el != nil {
			out = append(out, el)
		}
	}
	return out
}

const maxCachedSelectors = 512

var (
	selectorCache   = make(map[string]cascadia.Selector)
	selectorCacheMu sync.RWMutex
)

// compile returns a cached compiled selector, or nil when sel is invalid
func compile(sel string) cascadia.Selector {
	selectorCacheMu.RLock()
	s, ok := selectorCache[sel]
	selectorCacheMu.RUnlock()
	if ok {
		return s
	}

	s, err := cascadia.Compile(sel)
	if err != nil {
		L_debug("dom: invalid selector", "selector", sel, "error", err)
		s = nil
	}

	selectorCacheMu.Lock()
	if len(selectorCache) >= maxCachedSelectors {
		selectorCache = make(map[string]cascadia.Selector)
	}
	selectorCache[sel] = s
	selectorCacheMu.Unlock()
	return s
}

// ValidSelector reports whether sel compiles
func ValidSelector(sel string) bool {
	return compile(sel) != nil
}
