// Package pagecontext turns a DOM snapshot into a bounded, structured
// description of the page for the voice agent.
package pagecontext

import (
	"net/url"
	"strings"
	"time"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/protocol"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Extractor builds snapshots. The zero value is usable.
type Extractor struct {
	// Article adds a readability digest to detailed snapshots
	Article bool
	// Now stamps snapshots; defaults to time.Now
	Now func() time.Time
}

// Extract describes doc at the given detail level
func (x *Extractor) Extract(doc *dom.Document, level protocol.DetailLevel) *Snapshot {
	start := time.Now()
	now := time.Now
	if x != nil && x.Now != nil {
		now = x.Now
	}

	snap := &Snapshot{
		URL:        doc.URL().String(),
		Title:      doc.Title(),
		Timestamp:  protocol.Millis(now()),
		Navigation: Navigation(doc),
	}
	if level == protocol.DetailMinimal {
		return snap
	}

	snap.InteractiveElements = InteractiveElements(doc)
	snap.PageType = PageType(doc.URL())
	if level == protocol.DetailStandard {
		L_trace("pagecontext: extracted", "level", level, "elapsed", time.Since(start))
		return snap
	}

	snap.Forms = Forms(doc)
	snap.ContentSections = Sections(doc)
	snap.DeepContext = Deep(doc)
	if x != nil && x.Article {
		snap.DeepContext.Article = ArticleDigest(doc)
	}
	L_debug("pagecontext: extracted", "level", level, "interactive", len(snap.InteractiveElements), "elapsed", time.Since(start))
	return snap
}

// NavigationSelector finds links that belong to site navigation
const NavigationSelector = `nav a[href], [role="navigation"] a[href], header a[href], .nav a[href], .navbar a[href], .menu a[href]`

// Navigation returns deduplicated visible navigation links
func Navigation(doc *dom.Document) []Link {
	links := make([]Link, 0)
	seen := make(map[Link]bool)
	for _, a := range doc.QueryAll(NavigationSelector) {
		if len(links) >= MaxNavigation {
			break
		}
		href := strings.TrimSpace(a.Attr("href"))
		text := a.Label()
		if text == "" || dom.RuneLen(text) >= MaxNavTextLen {
			continue
		}
		if strings.HasPrefix(strings.ToLower(href), "javascript:") || !a.Visible() {
			continue
		}
		l := Link{Text: text, Href: href}
		if seen[l] {
			continue
		}
		seen[l] = true
		links = append(links, l)
	}
	return links
}

// InteractiveTargetSelector matches the elements listed as interactive
const InteractiveTargetSelector = `button:not([disabled]), a[href], input[type="submit"], [role="button"]`

// InteractiveTargets returns the elements behind InteractiveElements, in the
// same order, so an entry's Index addresses the element.
func InteractiveTargets(doc *dom.Document) []*dom.Element {
	var out []*dom.Element
	for _, el := range doc.QueryAll(InteractiveTargetSelector) {
		if len(out) >= MaxInteractive {
			break
		}
		if el.Tag() == "a" {
			href := strings.ToLower(strings.TrimSpace(el.Attr("href")))
			if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				continue
			}
		}
		text := el.Label()
		if text == "" || dom.RuneLen(text) >= MaxInteractiveText || !el.Visible() {
			continue
		}
		out = append(out, el)
	}
	return out
}

// InteractiveElements lists clickable elements with purpose and item context
func InteractiveElements(doc *dom.Document) []Interactive {
	targets := InteractiveTargets(doc)
	out := make([]Interactive, 0, len(targets))
	for i, el := range targets {
		visible := el.NormText()
		entry := Interactive{
			Index:       i,
			Type:        el.Tag(),
			Text:        el.Label(),
			Purpose:     DetectPurpose(visible, el.Attr("aria-label")),
			ItemContext: ItemContext(el),
			Title:       strings.TrimSpace(el.Attr("title")),
			Role:        el.Attr("role"),
		}
		if visible != "" && visible != entry.Text {
			entry.VisibleText = dom.Truncate(visible, MaxInteractiveText)
		}
		if el.Tag() == "a" {
			entry.Href = el.Attr("href")
		}
		out = append(out, entry)
	}
	return out
}

// Page types
const (
	PageProduct = "product_page"
	PageCart    = "cart_page"
	PageSearch  = "search_results"
	PageLanding = "landing_page"
	PageGeneral = "general_page"
)

// PageType guesses the kind of page from its URL
func PageType(u *url.URL) string {
	path := strings.ToLower(u.Path)
	switch {
	case strings.Contains(path, "/product") || strings.Contains(path, "/item"):
		return PageProduct
	case strings.Contains(path, "/cart") || strings.Contains(path, "/checkout"):
		return PageCart
	case strings.Contains(path, "/search") || u.Query().Has("q"):
		return PageSearch
	case path == "" || path == "/":
		return PageLanding
	default:
		return PageGeneral
	}
}

// Forms lists forms with their fillable fields
func Forms(doc *dom.Document) []Form {
	out := make([]Form, 0)
	for _, f := range doc.QueryAll("form") {
		if len(out) >= MaxForms {
			break
		}
		form := Form{ID: f.ID(), Fields: make([]Field, 0)}
		for _, c := range f.QueryAll("input, textarea, select") {
			if len(form.Fields) >= MaxFormFields {
				break
			}
			typ := fieldType(c)
			if typ == "hidden" || typ == "submit" || typ == "button" {
				continue
			}
			form.Fields = append(form.Fields, Field{
				Type:        typ,
				Name:        c.Attr("name"),
				Placeholder: c.Attr("placeholder"),
				Label:       FieldLabel(c),
			})
		}
		out = append(out, form)
	}
	return out
}

// Sections lists content regions with their first heading
func Sections(doc *dom.Document) []Section {
	out := make([]Section, 0)
	for _, s := range doc.QueryAll(`section, article, [role="main"], main`) {
		if len(out) >= MaxSections {
			break
		}
		if !s.Visible() {
			continue
		}
		sec := Section{HasButtons: s.Query(`button, [role="button"]`) != nil}
		if h := s.Query("h1, h2, h3, h4, h5, h6"); h != nil {
			sec.Heading = dom.Truncate(h.NormText(), 100)
		}
		out = append(out, sec)
	}
	return out
}

// FieldLabel resolves a control's label: <label for>, wrapping <label>,
// aria-label, then placeholder.
func FieldLabel(c *dom.Element) string {
	if id := c.ID(); id != "" {
		for _, l := range c.Document().QueryAll("label[for]") {
			if l.Attr("for") == id {
				return l.NormText()
			}
		}
	}
	if l := c.Closest("label"); l != nil {
		return l.NormText()
	}
	if v := strings.TrimSpace(c.Attr("aria-label")); v != "" {
		return v
	}
	return strings.TrimSpace(c.Attr("placeholder"))
}

func fieldType(c *dom.Element) string {
	switch c.Tag() {
	case "textarea", "select":
		return c.Tag()
	}
	if t := strings.ToLower(c.Attr("type")); t != "" {
		return t
	}
	return "text"
}
