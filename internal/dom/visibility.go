package dom

import (
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// style holds the properties that decide visibility. Empty means unset.
type style struct {
	display    string
	visibility string
	opacity    string
}

type styleRule struct {
	selector cascadia.Selector
	decls    style
}

// parseStyleRules extracts rules from a <style> body that touch display,
// visibility or opacity. Rules nested in at-rules (media queries) are ignored.
func parseStyleRules(src string) []styleRule {
	sheet, err := parser.Parse(src)
	if err != nil {
		return nil
	}
	var rules []styleRule
	for _, rule := range sheet.Rules {
		if rule.Kind != css.QualifiedRule {
			continue
		}
		decls := styleFrom(rule.Declarations)
		if decls == (style{}) {
			continue
		}
		for _, sel := range rule.Selectors {
			s, err := cascadia.Compile(sel)
			if err != nil {
				continue
			}
			rules = append(rules, styleRule{selector: s, decls: decls})
		}
	}
	return rules
}

func styleFrom(decls []*css.Declaration) style {
	var st style
	for _, d := range decls {
		v := strings.ToLower(strings.TrimSpace(d.Value))
		switch strings.ToLower(d.Property) {
		case "display":
			st.display = v
		case "visibility":
			st.visibility = v
		case "opacity":
			st.opacity = v
		}
	}
	return st
}

func (st style) overlay(o style) style {
	if o.display != "" {
		st.display = o.display
	}
	if o.visibility != "" {
		st.visibility = o.visibility
	}
	if o.opacity != "" {
		st.opacity = o.opacity
	}
	return st
}

// declaredStyle is the element's own style: stylesheet rules in source order,
// then the inline style attribute.
func (d *Document) declaredStyle(n *html.Node) style {
	d.styleMu.Lock()
	defer d.styleMu.Unlock()
	if st, ok := d.computed[n]; ok {
		return st
	}

	var st style
	for _, r := range d.styles {
		if r.selector.Match(n) {
			st = st.overlay(r.decls)
		}
	}
	if inline := strings.TrimRight(strings.TrimSpace(attr(n, "style")), "; "); inline != "" {
		// the parser only closes a declaration on ';' or '}'; a malformed
		// tail still yields the declarations before it
		decls, _ := parser.ParseDeclarations(inline + ";")
		st = st.overlay(styleFrom(decls))
	}
	d.computed[n] = st
	return st
}

// Visible reports whether the element is rendered. Live snapshots carry the
// browser's verdict; static ones are judged from markup: hidden attributes,
// display, visibility and opacity on the element or its ancestors.
func (e *Element) Visible() bool {
	if v := e.Attr(visibleMarker); v != "" {
		return v == "1"
	}
	if w, h, ok := e.Box(); ok && (w == 0 || h == 0) {
		return false
	}

	switch e.Tag() {
	case "head", "script", "style", "template", "noscript", "title", "meta", "link":
		return false
	case "input":
		if strings.EqualFold(e.Attr("type"), "hidden") {
			return false
		}
	}

	visibilityDecided := false
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if _, ok := attrLookup(n, "hidden"); ok {
			return false
		}
		if n.Data == "details" && n != e.node {
			// closed <details> only shows its summary
			if _, open := attrLookup(n, "open"); !open && !inSummary(e.node, n) {
				return false
			}
		}
		st := e.doc.declaredStyle(n)
		if st.display == "none" {
			return false
		}
		if op, err := strconv.ParseFloat(strings.TrimSuffix(st.opacity, "%"), 64); err == nil && op == 0 {
			return false
		}
		// visibility inherits, so the nearest declaration wins
		if !visibilityDecided && st.visibility != "" {
			visibilityDecided = true
			if st.visibility == "hidden" || st.visibility == "collapse" {
				return false
			}
		}
	}
	return true
}

func attrLookup(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func inSummary(n, details *html.Node) bool {
	for p := n; p != nil && p != details; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "summary" && p.Parent == details {
			return true
		}
	}
	return false
}
