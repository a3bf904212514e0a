// Package resolver maps a textual description of a UI target to one element
// of a DOM snapshot. Resolution is a ranked pipeline of strategies; the first
// strategy that finds something wins.
package resolver

import (
	"fmt"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Candidate selector sets by element type
const (
	ButtonSelector      = `button, [role="button"], a.button, input[type="button"], input[type="submit"]`
	LinkSelector        = `a, [role="link"]`
	InputSelector       = `input, textarea`
	InteractiveSelector = `button, a, input, textarea, select, [role="button"], [role="link"], [role="tab"], [onclick], .clickable, [data-clickable]`
)

// SelectorFor returns the candidate set for an element type. Unknown types
// that are valid CSS selectors are used as-is.
func SelectorFor(elementType string) string {
	switch strings.ToLower(strings.TrimSpace(elementType)) {
	case "":
		return InteractiveSelector
	case "button":
		return ButtonSelector
	case "link", "a":
		return LinkSelector
	case "input", "field", "textarea":
		return InputSelector
	}
	if dom.ValidSelector(elementType) {
		return elementType
	}
	return InteractiveSelector
}

// Query describes the element to find
type Query struct {
	Text        string
	ElementType string
	ContextText string
	Nth         int
}

func (q Query) String() string {
	s := fmt.Sprintf("%q", q.Text)
	if q.ElementType != "" {
		s += " type=" + q.ElementType
	}
	if q.ContextText != "" {
		s += fmt.Sprintf(" within %q", q.ContextText)
	}
	if q.Nth > 0 {
		s += fmt.Sprintf(" #%d", q.Nth)
	}
	return s
}

// Strategy is one way of finding an element. Find returns nil when the
// strategy does not apply or finds nothing.
type Strategy interface {
	Name() string
	Find(doc *dom.Document, q Query) *dom.Element
}

// Resolver runs strategies in order
type Resolver struct {
	strategies []Strategy
}

// New builds a resolver from strategies in priority order
func New(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Default is context-aware search followed by typed text search
func Default() *Resolver {
	return New(ContextStrategy{}, TextStrategy{})
}

// Strategies returns strategy names in priority order
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first strategy's hit, or an error wrapping
// protocol.ErrResolution.
func (r *Resolver) Resolve(doc *dom.Document, q Query) (*dom.Element, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("%w: empty target text", protocol.ErrResolution)
	}
	for _, s := range r.strategies {
		if el := s.Find(doc, q); el != nil {
			L_debug("resolver: resolved", "query", q.String(), "strategy", s.Name(), "tag", el.Tag(), "index", el.Index())
			return el, nil
		}
		L_trace("resolver: strategy missed", "query", q.String(), "strategy", s.Name())
	}
	return nil, fmt.Errorf("%w: no element matching %s", protocol.ErrResolution, q)
}

// MatchesText tests target against the element's text, aria-label, title,
// placeholder and button value.
func MatchesText(el *dom.Element, target string) bool {
	if dom.ContainsFold(el.NormText(), target) {
		return true
	}
	for _, name := range []string{"aria-label", "title", "placeholder"} {
		if dom.ContainsFold(el.Attr(name), target) {
			return true
		}
	}
	if el.Tag() == "input" {
		switch strings.ToLower(el.Attr("type")) {
		case "submit", "button", "reset":
			return dom.ContainsFold(el.Attr("value"), target)
		}
	}
	return false
}

func nth(els []*dom.Element, n int) *dom.Element {
	if n < 0 || n >= len(els) {
		return nil
	}
	return els[n]
}
