package pagecontext

import (
	"strconv"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"

	"github.com/roelfdiedericks/voicenav/internal/dom"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// Deep builds the detailed-level context bundle
func Deep(doc *dom.Document) *DeepContext {
	return &DeepContext{
		SemanticStructure: Landmarks(doc),
		TextContent:       TextNodes(doc),
		DataAttributes:    DataAttributes(doc),
		InputFields:       InputFields(doc),
		VisualHierarchy:   Containers(doc),
	}
}

const landmarkSelector = `main, nav, header, footer, aside, section, article, [role="main"], [role="navigation"], [role="banner"], [role="contentinfo"], [role="complementary"], [role="region"]`

// Landmarks outlines semantic regions: headings, short lists and table headers
func Landmarks(doc *dom.Document) []Landmark {
	out := make([]Landmark, 0)
	for _, el := range doc.QueryAll(landmarkSelector) {
		if len(out) >= MaxLandmarks {
			break
		}
		if !el.Visible() {
			continue
		}
		lm := Landmark{
			Tag:       el.Tag(),
			Role:      el.Attr("role"),
			ID:        el.ID(),
			Classes:   firstN(el.Classes(), 5),
			AriaLabel: el.Attr("aria-label"),
		}
		for _, h := range el.QueryAll("h1, h2, h3, h4, h5, h6") {
			if len(lm.Headings) >= MaxLandmarkItems {
				break
			}
			level, _ := strconv.Atoi(strings.TrimPrefix(h.Tag(), "h"))
			if text := h.NormText(); text != "" {
				lm.Headings = append(lm.Headings, Heading{Level: level, Text: dom.Truncate(text, 100)})
			}
		}
		for _, list := range el.QueryAll("ul, ol") {
			if len(lm.Lists) >= MaxLandmarkItems {
				break
			}
			items := list.Children()
			if len(items) == 0 || len(items) >= 20 {
				continue
			}
			var texts []string
			for _, li := range items {
				if len(texts) >= MaxLandmarkItems {
					break
				}
				if text := li.NormText(); text != "" {
					texts = append(texts, dom.Truncate(text, 100))
				}
			}
			if len(texts) > 0 {
				lm.Lists = append(lm.Lists, texts)
			}
		}
		for _, table := range el.QueryAll("table") {
			if len(lm.Tables) >= MaxLandmarkItems {
				break
			}
			var headers []string
			for _, th := range table.QueryAll("th") {
				if len(headers) >= MaxLandmarkItems {
					break
				}
				headers = append(headers, th.NormText())
			}
			if len(headers) > 0 {
				lm.Tables = append(lm.Tables, headers)
			}
		}
		out = append(out, lm)
	}
	return out
}

const textSelector = `p, span, div, li, td, th, label, [class*="text"], [class*="content"], [class*="description"], [class*="title"], [class*="name"], [class*="label"]`

// TextNodes collects visible short text with its label, data attributes and classes
func TextNodes(doc *dom.Document) []TextNode {
	out := make([]TextNode, 0)
	seen := make(map[string]bool)
	for _, el := range doc.QueryAll(textSelector) {
		if len(out) >= MaxTextNodes {
			break
		}
		text := el.OwnText()
		if n := dom.RuneLen(text); n < 3 || n > 500 || seen[text] || !el.Visible() {
			continue
		}
		seen[text] = true

		node := TextNode{Text: text, Tag: el.Tag(), Classes: firstN(el.Classes(), 5)}
		if l := el.Closest("label"); l != nil && l != el {
			node.Label = dom.Truncate(l.NormText(), 100)
		} else if v := el.Attr("aria-label"); v != "" {
			node.Label = v
		}
		for _, a := range el.Attrs() {
			if isDataAttr(a.Key) {
				if node.DataAttributes == nil {
					node.DataAttributes = make(map[string]string)
				}
				node.DataAttributes[a.Key] = dom.Truncate(a.Val, MaxDataValueLen)
			}
		}
		out = append(out, node)
	}
	return out
}

// DataAttributes indexes data-* values across the page
func DataAttributes(doc *dom.Document) map[string][]string {
	out := make(map[string][]string)
	for _, el := range doc.Elements() {
		for _, a := range el.Attrs() {
			if !isDataAttr(a.Key) {
				continue
			}
			v := strings.TrimSpace(a.Val)
			if v == "" || dom.RuneLen(v) >= MaxDataValueLen {
				continue
			}
			values, known := out[a.Key]
			if !known && len(out) >= MaxDataKeys {
				continue
			}
			if len(values) >= MaxDataValues || contains(values, v) {
				continue
			}
			out[a.Key] = append(values, v)
		}
	}
	return out
}

// InputFields lists visible controls except hidden and password inputs
func InputFields(doc *dom.Document) []InputField {
	out := make([]InputField, 0)
	for _, c := range doc.QueryAll("input, textarea, select") {
		if len(out) >= MaxInputFields {
			break
		}
		typ := fieldType(c)
		if typ == "hidden" || typ == "password" || !c.Visible() {
			continue
		}
		f := InputField{
			Type:        typ,
			Name:        c.Attr("name"),
			ID:          c.ID(),
			Placeholder: c.Attr("placeholder"),
			Value:       dom.Truncate(c.Value(), MaxDataValueLen),
			Label:       FieldLabel(c),
			ItemContext: ItemContext(c),
		}
		if p := c.Parent(); p != nil {
			f.NearbyText = dom.Truncate(p.NormText(), 100)
		}
		out = append(out, f)
	}
	return out
}

const containerSelector = `[class*="card"], [class*="item"], [class*="product"], [class*="row"], [class*="col"], [class*="grid"], [class*="container"], [class*="wrapper"], [class*="box"]`

// Containers describes card-like regions. Containers wider than 90% of the
// viewport, or holding several other containers, are layout rather than
// items and are skipped.
func Containers(doc *dom.Document) []Container {
	all := doc.QueryAll(containerSelector)
	vw := doc.Viewport().Width

	out := make([]Container, 0)
	for _, el := range all {
		if len(out) >= MaxContainers {
			break
		}
		if !el.Visible() {
			continue
		}
		if w, _, ok := el.Box(); ok && vw > 0 && w >= 0.9*vw {
			continue
		}
		if nested := countInside(el, all); nested > 1 {
			continue
		}

		c := Container{
			Tag:     el.Tag(),
			Classes: firstN(el.Classes(), 5),
			Text:    dom.Truncate(el.NormText(), 500),
		}
		if h := el.Query("h1, h2, h3, h4, h5, h6"); h != nil {
			c.Heading = h.NormText()
		}
		for _, b := range el.QueryAll(`button, a[href], [role="button"], input[type="submit"]`) {
			if len(c.Clickables) >= MaxClickables {
				break
			}
			if !b.Visible() {
				continue
			}
			c.Clickables = append(c.Clickables, Clickable{
				Text:    b.Label(),
				Type:    b.Tag(),
				Purpose: DetectPurpose(b.NormText(), b.Attr("aria-label")),
			})
		}
		for _, in := range el.QueryAll("input, textarea, select") {
			if len(c.InputFields) >= MaxClickables {
				break
			}
			if typ := fieldType(in); typ != "hidden" && typ != "password" {
				name := in.Attr("name")
				if name == "" {
					name = typ
				}
				c.InputFields = append(c.InputFields, name)
			}
		}
		c.QuantityControls = QuantityControls(el)
		out = append(out, c)
	}
	return out
}

// QuantityControls detects a quantity stepper (a numeric input with
// increase and decrease buttons) or a quantity select inside el.
func QuantityControls(el *dom.Element) *QuantityControl {
	for _, in := range el.QueryAll("input") {
		if !isQuantityInput(in) {
			continue
		}
		qc := &QuantityControl{Kind: "stepper", Name: in.Attr("name"), Value: in.Value()}
		for _, b := range el.QueryAll(`button, [role="button"]`) {
			switch DetectPurpose(b.NormText(), b.Attr("aria-label")) {
			case PurposeIncrease:
				if qc.Increase == "" {
					qc.Increase = b.Label()
				}
			case PurposeDecrease:
				if qc.Decrease == "" {
					qc.Decrease = b.Label()
				}
			}
		}
		if qc.Increase != "" || qc.Decrease != "" {
			return qc
		}
	}
	for _, sel := range el.QueryAll("select") {
		if hasQuantityHint(sel) {
			qc := &QuantityControl{Kind: "select", Name: sel.Attr("name")}
			if opt := sel.Query("option[selected]"); opt != nil {
				qc.Value = opt.Attr("value")
			}
			return qc
		}
	}
	return nil
}

func isQuantityInput(in *dom.Element) bool {
	return strings.EqualFold(in.Attr("type"), "number") || hasQuantityHint(in)
}

func hasQuantityHint(el *dom.Element) bool {
	for _, v := range []string{el.Attr("name"), el.ID(), el.Attr("class"), el.Attr("aria-label")} {
		v = strings.ToLower(v)
		if strings.Contains(v, "qty") || strings.Contains(v, "quantity") {
			return true
		}
	}
	return false
}

// ArticleDigest runs readability over the snapshot. Pages without a main
// article (most shops) yield nil.
func ArticleDigest(doc *dom.Document) *Article {
	article, err := readability.FromReader(strings.NewReader(doc.HTML()), doc.URL())
	if err != nil {
		L_debug("pagecontext: readability failed", "url", doc.URL().String(), "error", err)
		return nil
	}
	text := dom.Normalize(article.TextContent)
	if text == "" && article.Title == "" {
		return nil
	}
	digest := &Article{
		Title:    article.Title,
		Byline:   article.Byline,
		SiteName: article.SiteName,
		Excerpt:  dom.Truncate(text, MaxArticleExcerpt),
	}
	if article.Content != "" {
		md, err := htmltomd.ConvertString(article.Content)
		if err != nil {
			L_debug("pagecontext: html-to-markdown failed", "url", doc.URL().String(), "error", err)
		} else {
			digest.Markdown = dom.Truncate(strings.TrimSpace(md), MaxArticleMarkdown)
		}
	}
	return digest
}

func isDataAttr(key string) bool {
	return strings.HasPrefix(key, "data-") && !strings.HasPrefix(key, "data-vx-")
}

func countInside(el *dom.Element, all []*dom.Element) int {
	n := 0
	for _, o := range all {
		if o != el && el.Contains(o) {
			n++
		}
	}
	return n
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
