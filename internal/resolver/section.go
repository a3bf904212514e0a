package resolver

import (
	"fmt"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
)

// SectionSelector matches elements that can stand for a named page section
const SectionSelector = `h1, h2, h3, h4, h5, h6, section, [role="region"]`

// FindSection locates a scroll target for a section name: an element whose
// id is the slugged name, a section whose id contains it, a matching
// data-section attribute, then any heading or region whose text contains
// every word of the name.
func FindSection(doc *dom.Document, name string) (*dom.Element, error) {
	name = strings.TrimSpace(name)
	slug := dom.Slug(name)
	if slug == "" {
		return nil, fmt.Errorf("%w: empty section name", protocol.ErrResolution)
	}

	visible := func(els []*dom.Element, ok func(*dom.Element) bool) *dom.Element {
		for _, el := range els {
			if ok(el) && el.Visible() {
				return el
			}
		}
		return nil
	}
	all := doc.Elements()

	if el := visible(all, func(el *dom.Element) bool { return strings.EqualFold(el.ID(), slug) }); el != nil {
		return el, nil
	}
	if el := visible(doc.QueryAll("section[id]"), func(el *dom.Element) bool {
		return strings.Contains(strings.ToLower(el.ID()), slug)
	}); el != nil {
		return el, nil
	}
	if el := visible(doc.QueryAll("[data-section]"), func(el *dom.Element) bool {
		v := el.Attr("data-section")
		return strings.EqualFold(v, name) || strings.EqualFold(v, slug)
	}); el != nil {
		return el, nil
	}

	words := strings.Fields(strings.ToLower(name))
	if el := visible(doc.QueryAll(SectionSelector), func(el *dom.Element) bool {
		text := strings.ToLower(el.NormText())
		for _, w := range words {
			if !strings.Contains(text, w) {
				return false
			}
		}
		return true
	}); el != nil {
		return el, nil
	}
	return nil, fmt.Errorf("%w: no section named %q", protocol.ErrResolution, name)
}
