package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/pagecontext"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
	"github.com/roelfdiedericks/voicenav/internal/resolver"
)

// resolveClick finds the element a click command refers to. With no target
// text, element_index addresses the interactive elements of a page context
// snapshot; otherwise it overrides nth_match.
func (e *Executor) resolveClick(doc *dom.Document, c protocol.ClickElement) (*dom.Element, error) {
	if strings.TrimSpace(c.TargetText) == "" {
		if c.ElementIndex == nil {
			return nil, fmt.Errorf("%w: no target", protocol.ErrResolution)
		}
		targets := pagecontext.InteractiveTargets(doc)
		i := int(*c.ElementIndex)
		if i < 0 || i >= len(targets) {
			return nil, fmt.Errorf("%w: element index %d out of range (%d interactive elements)", protocol.ErrResolution, i, len(targets))
		}
		return targets[i], nil
	}

	nth := int(c.NthMatch)
	if c.ElementIndex != nil {
		nth = int(*c.ElementIndex)
	}
	return e.resolver.Resolve(doc, resolver.Query{
		Text:        c.TargetText,
		ElementType: c.ElementType,
		ContextText: c.Context(),
		Nth:         nth,
	})
}

func (e *Executor) click(ctx context.Context, c protocol.ClickElement) Outcome {
	doc, err := e.page.Snapshot(ctx)
	if err != nil {
		return failed(fmt.Errorf("snapshot: %w", err))
	}
	el, err := e.resolveClick(doc, c)
	if err != nil {
		return failed(err)
	}
	if err := e.reveal(ctx, el); err != nil {
		return failed(err)
	}
	if err := e.page.Click(ctx, el); err != nil {
		return failed(fmt.Errorf("click: %w", err))
	}
	return ok(fmt.Sprintf("Clicked %q", describe(el, c.TargetText)))
}

func (e *Executor) toggle(ctx context.Context, c protocol.ToggleElement) Outcome {
	doc, err := e.page.Snapshot(ctx)
	if err != nil {
		return failed(fmt.Errorf("snapshot: %w", err))
	}
	el, err := e.resolver.Resolve(doc, resolver.Query{Text: c.Target})
	if err != nil {
		return failed(err)
	}
	if err := e.reveal(ctx, el); err != nil {
		return failed(err)
	}
	if err := e.page.Click(ctx, el); err != nil {
		return failed(fmt.Errorf("toggle: %w", err))
	}
	return ok(fmt.Sprintf("Toggled %q", describe(el, c.Target)))
}

// resolveField uses the hint, then the focused control, then the first
// fillable control on the page.
func (e *Executor) resolveField(doc *dom.Document, hint string) (*dom.Element, error) {
	var hintErr error
	if strings.TrimSpace(hint) != "" {
		el, err := e.fields.Resolve(doc, hint)
		if err == nil {
			return el, nil
		}
		hintErr = err
	}
	if f := doc.Focused(); f != nil && (f.Tag() == "input" || f.Tag() == "textarea") && resolver.IsFillable(f) {
		return f, nil
	}
	for _, el := range resolver.FillableControls(doc) {
		if el.Tag() == "input" || el.Tag() == "textarea" {
			return el, nil
		}
	}
	if hintErr != nil {
		return nil, hintErr
	}
	return nil, fmt.Errorf("%w: no fillable field on the page", protocol.ErrResolution)
}

func (e *Executor) fill(ctx context.Context, c protocol.FillField) Outcome {
	doc, err := e.page.Snapshot(ctx)
	if err != nil {
		return failed(fmt.Errorf("snapshot: %w", err))
	}
	el, err := e.resolveField(doc, c.FieldHint)
	if err != nil {
		return failed(err)
	}
	if err := e.reveal(ctx, el); err != nil {
		return failed(err)
	}
	if err := e.page.SetValue(ctx, el, c.Value); err != nil {
		return failed(fmt.Errorf("fill: %w", err))
	}
	name := c.FieldHint
	if name == "" {
		name = pagecontext.FieldLabel(el)
	}
	if name == "" {
		name = el.Tag()
	}
	return ok("Filled " + name)
}

func describe(el *dom.Element, fallback string) string {
	if label := dom.Truncate(el.Label(), 60); label != "" {
		return label
	}
	return fallback
}
