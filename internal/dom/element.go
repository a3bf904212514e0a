package dom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Attributes stamped on live pages by the browser driver before a snapshot.
const (
	HandleAttr    = "data-vx-id"
	visibleMarker = "data-vx-vis" // "1" visible, "0" hidden (computed style + box)
	widthMarker   = "data-vx-w"
	heightMarker  = "data-vx-h"
	focusMarker   = "data-vx-focus"
)

// Element is one element of a Document.
type Element struct {
	doc   *Document
	node  *html.Node
	index int
}

// Node returns the underlying parse tree node
func (e *Element) Node() *html.Node { return e.node }

// Document returns the snapshot this element belongs to
func (e *Element) Document() *Document { return e.doc }

// Index is the element's position in document order
func (e *Element) Index() int { return e.index }

// Tag returns the lowercase tag name
func (e *Element) Tag() string { return e.node.Data }

// Attr returns an attribute value, or "" when absent
func (e *Element) Attr(name string) string { return attr(e.node, name) }

// HasAttr reports whether the attribute is present
func (e *Element) HasAttr(name string) bool {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// Attrs returns all attributes in source order
func (e *Element) Attrs() []html.Attribute { return e.node.Attr }

// ID returns the id attribute
func (e *Element) ID() string { return e.Attr("id") }

// Classes returns the class list
func (e *Element) Classes() []string { return strings.Fields(e.Attr("class")) }

// Handle identifies the element on a live page ("" on static documents)
func (e *Element) Handle() string { return e.Attr(HandleAttr) }

// Text returns the concatenated text of all descendants (textContent)
func (e *Element) Text() string { return textOf(e.node, false) }

// NormText returns Text with whitespace collapsed and trimmed
func (e *Element) NormText() string { return Normalize(e.Text()) }

// OwnText returns the element's direct text children, whitespace collapsed
func (e *Element) OwnText() string {
	var b strings.Builder
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return Normalize(b.String())
}

// Parent returns the parent element, or nil at the root
func (e *Element) Parent() *Element {
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return e.doc.byNode[p]
		}
	}
	return nil
}

// Children returns the direct child elements
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if el := e.doc.byNode[c]; el != nil {
				out = append(out, el)
			}
		}
	}
	return out
}

// Contains reports whether other is e or one of its descendants
func (e *Element) Contains(other *Element) bool {
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// Matches reports whether the element matches sel
func (e *Element) Matches(sel string) bool {
	s := compile(sel)
	return s != nil && s.Match(e.node)
}

// Closest returns the nearest ancestor-or-self matching sel
func (e *Element) Closest(sel string) *Element {
	s := compile(sel)
	if s == nil {
		return nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && s.Match(n) {
			return e.doc.byNode[n]
		}
	}
	return nil
}

// QueryAll returns matching descendants in document order
func (e *Element) QueryAll(sel string) []*Element {
	s := compile(sel)
	if s == nil {
		return nil
	}
	matches := s.MatchAll(e.node)
	if len(matches) > 0 && matches[0] == e.node {
		matches = matches[1:]
	}
	return e.doc.wrapAll(matches)
}

// Query returns the first matching descendant
func (e *Element) Query(sel string) *Element {
	all := e.QueryAll(sel)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// Box returns the rendered size recorded by a live page.
func (e *Element) Box() (width, height float64, ok bool) {
	w, errW := strconv.ParseFloat(e.Attr(widthMarker), 64)
	h, errH := strconv.ParseFloat(e.Attr(heightMarker), 64)
	if errW != nil || errH != nil {
		return 0, 0, false
	}
	return w, h, true
}

// Label returns the best human-readable name: aria-label, then text, then title
func (e *Element) Label() string {
	if v := strings.TrimSpace(e.Attr("aria-label")); v != "" {
		return v
	}
	if v := e.NormText(); v != "" {
		return v
	}
	if e.Tag() == "input" {
		if v := strings.TrimSpace(e.Attr("value")); v != "" {
			return v
		}
	}
	return strings.TrimSpace(e.Attr("title"))
}

// Value returns the current form value
func (e *Element) Value() string {
	if e.Tag() == "textarea" {
		return e.Text()
	}
	return e.Attr("value")
}

func attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// textOf concatenates descendant text. Script and style bodies are skipped
// unless raw is set.
func textOf(n *html.Node, raw bool) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if !raw {
				switch n.Data {
				case "script", "style", "noscript", "template":
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
