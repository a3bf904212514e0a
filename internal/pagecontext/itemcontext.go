package pagecontext

import (
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/dom"
)

// ItemSelector matches containers that usually represent one item
const ItemSelector = `.product, .product-card, .card, .item, [data-product], [data-item], article, [role="article"]`

// ItemContainer returns the nearest item-like ancestor of el, or nil.
func ItemContainer(el *dom.Element) *dom.Element {
	if cs := itemContainers(el); len(cs) > 0 {
		return cs[0]
	}
	return nil
}

// itemContainers lists possible item containers from nearest to farthest:
// an explicit product/card/item ancestor first, otherwise any div, li,
// article or section within five levels that has between 2 and 20 children.
func itemContainers(el *dom.Element) []*dom.Element {
	body := el.Document().Body()
	if c := el.Closest(ItemSelector); c != nil && c != el && c != body {
		return []*dom.Element{c}
	}

	var out []*dom.Element
	p := el.Parent()
	for depth := 0; p != nil && p != body && depth < 5; depth++ {
		switch p.Tag() {
		case "div", "article", "section", "li":
			if n := len(p.Children()); n >= 2 && n <= 20 {
				out = append(out, p)
			}
		}
		p = p.Parent()
	}
	return out
}

// ItemContext describes the item a control belongs to, so the agent can
// tell apart repeated controls such as one "+" per product. The nearest
// container that says anything wins; within it the aria-label is preferred,
// then a heading, a price, then a short description.
func ItemContext(el *dom.Element) string {
	for _, c := range itemContainers(el) {
		if text := describeItem(c, el); text != "" {
			return text
		}
	}
	return ""
}

func describeItem(c, el *dom.Element) string {
	if label := strings.TrimSpace(c.Attr("aria-label")); label != "" {
		return label
	}
	for _, h := range c.QueryAll(`h1, h2, h3, h4, h5, h6, .title, .name, [class*="title"], [class*="name"]`) {
		if h.Contains(el) {
			continue
		}
		if text := h.NormText(); text != "" && dom.RuneLen(text) < 100 {
			return text
		}
	}
	for _, p := range c.QueryAll(`.price, [class*="price"], [data-price], .cost, [class*="cost"]`) {
		if text := p.NormText(); text != "" && dom.RuneLen(text) < 50 && LooksLikePrice(text) {
			return text
		}
	}
	for _, d := range c.QueryAll(`p, .description, [class*="desc"]`) {
		text := d.NormText()
		if n := dom.RuneLen(text); n > 10 && n < 150 {
			return firstSentence(text, 100)
		}
	}
	return ""
}

func firstSentence(s string, max int) string {
	if i := strings.IndexAny(s, ".!?"); i > 0 {
		s = s[:i]
	}
	return dom.Truncate(strings.TrimSpace(s), max)
}
