package resolver

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// FieldSelector matches form controls a value can be typed into
const FieldSelector = `input, textarea, select`

// FieldStrategy finds a form control from a hint such as "email"
type FieldStrategy interface {
	Name() string
	FindField(doc *dom.Document, controls []*dom.Element, hint string) *dom.Element
}

// FieldResolver tries field strategies in order
type FieldResolver struct {
	strategies []FieldStrategy
}

// NewFieldResolver builds a field resolver; with no strategies it uses
// name, id, placeholder, label, then aria-label matching.
func NewFieldResolver(strategies ...FieldStrategy) *FieldResolver {
	if len(strategies) == 0 {
		strategies = []FieldStrategy{
			attrField{"name"},
			attrField{"id"},
			attrField{"placeholder"},
			labelField{},
			attrField{"aria-label"},
		}
	}
	return &FieldResolver{strategies: strategies}
}

// Resolve returns the first field matching hint
func (r *FieldResolver) Resolve(doc *dom.Document, hint string) (*dom.Element, error) {
	if strings.TrimSpace(hint) == "" {
		return nil, fmt.Errorf("%w: empty field hint", protocol.ErrResolution)
	}
	controls := FillableControls(doc)
	for _, s := range r.strategies {
		if el := s.FindField(doc, controls, hint); el != nil {
			L_debug("resolver: field resolved", "hint", hint, "strategy", s.Name(), "tag", el.Tag())
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: no field matching %q", protocol.ErrResolution, hint)
}

// FillableControls returns visible, enabled controls that accept text, in
// document order.
func FillableControls(doc *dom.Document) []*dom.Element {
	var out []*dom.Element
	for _, el := range doc.QueryAll(FieldSelector) {
		if IsFillable(el) && el.Visible() {
			out = append(out, el)
		}
	}
	return out
}

// IsFillable reports whether el is a form control a value can be typed into
func IsFillable(el *dom.Element) bool {
	switch el.Tag() {
	case "textarea", "select":
	case "input":
		switch strings.ToLower(el.Attr("type")) {
		case "hidden", "submit", "button", "reset", "image", "checkbox", "radio", "file":
			return false
		}
	default:
		return false
	}
	return !el.HasAttr("disabled") && !el.HasAttr("readonly")
}

// attrField matches a substring of one attribute. Punctuation and spacing
// are ignored so "email address" finds name="email_address".
type attrField struct {
	attr string
}

func (a attrField) Name() string { return a.attr }

func (a attrField) FindField(_ *dom.Document, controls []*dom.Element, hint string) *dom.Element {
	want := squash(hint)
	if want == "" {
		return nil
	}
	for _, el := range controls {
		if strings.Contains(squash(el.Attr(a.attr)), want) {
			return el
		}
	}
	return nil
}

// labelField matches <label> text, then follows its for attribute or its
// nested control.
type labelField struct{}

func (labelField) Name() string { return "label" }

func (labelField) FindField(doc *dom.Document, controls []*dom.Element, hint string) *dom.Element {
	allowed := make(map[*dom.Element]bool, len(controls))
	for _, c := range controls {
		allowed[c] = true
	}

	for _, label := range doc.QueryAll("label") {
		if !dom.ContainsFold(label.NormText(), hint) {
			continue
		}
		if id := label.Attr("for"); id != "" {
			for _, c := range controls {
				if c.ID() == id {
					return c
				}
			}
		}
		for _, nested := range label.QueryAll(FieldSelector) {
			if allowed[nested] {
				return nested
			}
		}
	}
	return nil
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
