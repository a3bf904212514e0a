package resolver

import "github.com/roelfdiedericks/voicenav/internal/dom"

// ContextStrategy finds target text inside an item that also mentions the
// context text, e.g. the "Add to Cart" button in the "Red Sneakers" card.
//
// Candidates are the innermost visible elements whose text or aria-label
// contains the target. Tight matches come first: a candidate whose own item
// (the ancestors below the first one shared with another candidate)
// mentions the context. When no candidate has a tight match, any ancestor
// below <body> counts, so a context naming a section, list or form still
// narrows the choice. Matches are promoted to their nearest interactive
// ancestor.
type ContextStrategy struct{}

func (ContextStrategy) Name() string { return "context" }

func (ContextStrategy) Find(doc *dom.Document, q Query) *dom.Element {
	if q.ContextText == "" || doc.Body() == nil {
		return nil
	}
	body := doc.Body()
	candidates := innermost(body, q.Text)

	matches := promote(body, candidates, func(c *dom.Element) bool {
		return withinItem(c, candidates, body, q.ContextText)
	})
	if len(matches) == 0 {
		matches = promote(body, candidates, func(c *dom.Element) bool {
			return underContext(c, body, q.ContextText)
		})
	}

	if q.ElementType != "" {
		sel := SelectorFor(q.ElementType)
		var typed []*dom.Element
		for _, m := range matches {
			if m.Matches(sel) {
				typed = append(typed, m)
			}
		}
		if len(typed) > 0 {
			matches = typed
		}
	}
	return nth(matches, q.Nth)
}

// innermost returns visible elements under root matching target that have
// no matching descendant, in document order.
func innermost(root *dom.Element, target string) []*dom.Element {
	var all []*dom.Element
	for _, el := range root.QueryAll("*") {
		if dom.ContainsFold(el.NormText(), target) || dom.ContainsFold(el.Attr("aria-label"), target) {
			all = append(all, el)
		}
	}

	// descendants follow their ancestor directly in document order, so an
	// element has a matching descendant iff the next match is inside it
	var out []*dom.Element
	for i, el := range all {
		if i+1 < len(all) && el.Contains(all[i+1]) {
			continue
		}
		if el.Visible() {
			out = append(out, el)
		}
	}
	return out
}

// promote keeps the candidates accepted by keep, lifted to their nearest
// interactive ancestor, without duplicates and in document order
func promote(body *dom.Element, candidates []*dom.Element, keep func(*dom.Element) bool) []*dom.Element {
	var out []*dom.Element
	seen := make(map[*dom.Element]bool)
	for _, c := range candidates {
		if !keep(c) {
			continue
		}
		target := c
		if interactive := c.Closest(InteractiveSelector); interactive != nil && body.Contains(interactive) {
			target = interactive
		}
		if !seen[target] {
			seen[target] = true
			out = append(out, target)
		}
	}
	return out
}

func withinItem(c *dom.Element, candidates []*dom.Element, body *dom.Element, context string) bool {
	if dom.ContainsFold(c.NormText(), context) {
		return true
	}
	for a := c.Parent(); a != nil && a != body; a = a.Parent() {
		if holdsOther(a, c, candidates) {
			return false
		}
		if dom.ContainsFold(a.NormText(), context) || dom.ContainsFold(a.Attr("aria-label"), context) {
			return true
		}
	}
	return false
}

func holdsOther(a, self *dom.Element, candidates []*dom.Element) bool {
	for _, o := range candidates {
		if o != self && a.Contains(o) {
			return true
		}
	}
	return false
}

// underContext reports whether c or any ancestor below body mentions context
func underContext(c, body *dom.Element, context string) bool {
	for a := c; a != nil && a != body; a = a.Parent() {
		if dom.ContainsFold(a.NormText(), context) || dom.ContainsFold(a.Attr("aria-label"), context) {
			return true
		}
	}
	return false
}
