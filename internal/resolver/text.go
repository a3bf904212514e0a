package resolver

import "github.com/roelfdiedericks/voicenav/internal/dom"

// TextStrategy searches the candidate set for the element type and returns
// the nth visible element whose text matches.
type TextStrategy struct{}

func (TextStrategy) Name() string { return "text" }

func (TextStrategy) Find(doc *dom.Document, q Query) *dom.Element {
	var matches []*dom.Element
	for _, el := range doc.QueryAll(SelectorFor(q.ElementType)) {
		if el.Visible() && MatchesText(el, q.Text) {
			matches = append(matches, el)
		}
	}
	return nth(matches, q.Nth)
}
