package actions

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
	"github.com/roelfdiedericks/voicenav/internal/resolver"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// ScrollStep is the fraction of the viewport height moved by one relative scroll
const ScrollStep = 0.2

// ScrollOffset computes the new vertical offset for a direction keyword.
// Unknown directions report ok=false.
func ScrollOffset(vp dom.Viewport, direction string) (y float64, ok bool) {
	step := vp.Height * ScrollStep
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "", "down", "next":
		return vp.ClampY(vp.ScrollY + math.Min(step, vp.MaxScrollY()-vp.ScrollY)), true
	case "up", "previous", "back":
		return vp.ClampY(vp.ScrollY - math.Min(step, vp.ScrollY)), true
	case "top", "start", "beginning":
		return 0, true
	case "bottom", "end":
		return vp.MaxScrollY(), true
	case "middle", "center", "centre":
		return vp.ClampY(vp.ScrollHeight / 2), true
	}
	return 0, false
}

func (e *Executor) scrollPage(ctx context.Context, c protocol.ScrollPage) Outcome {
	if c.TargetSection != "" {
		if out, found := e.scrollToSection(ctx, c.TargetSection); found {
			return out
		}
		L_debug("actions: section not found, scrolling by direction", "section", c.TargetSection, "direction", c.Direction)
	}

	vp, err := e.page.Viewport(ctx)
	if err != nil {
		return failed(fmt.Errorf("viewport: %w", err))
	}
	direction := strings.ToLower(strings.TrimSpace(c.Direction))
	y, known := ScrollOffset(vp, direction)
	if !known {
		if out, found := e.scrollToSection(ctx, direction); found {
			return out
		}
		direction = "down"
		y, _ = ScrollOffset(vp, direction)
	}
	if direction == "" {
		direction = "down"
	}
	if err := e.page.ScrollTo(ctx, y); err != nil {
		return failed(fmt.Errorf("scroll: %w", err))
	}
	return ok("Scrolled " + direction)
}

// scrollToSection reports found=false when no section matches, so callers
// can fall back to a directional scroll.
func (e *Executor) scrollToSection(ctx context.Context, name string) (Outcome, bool) {
	doc, err := e.page.Snapshot(ctx)
	if err != nil {
		return failed(fmt.Errorf("snapshot: %w", err)), true
	}
	el, err := resolver.FindSection(doc, name)
	if err != nil {
		return Outcome{}, false
	}
	if err := e.page.ScrollIntoView(ctx, el, dom.AlignStart); err != nil {
		return failed(fmt.Errorf("scroll into view: %w", err)), true
	}
	return ok(fmt.Sprintf("Scrolled to %s", name)), true
}

func (e *Executor) scrollToContent(ctx context.Context) Outcome {
	vp, err := e.page.Viewport(ctx)
	if err != nil {
		return failed(fmt.Errorf("viewport: %w", err))
	}
	if err := e.page.ScrollTo(ctx, vp.ClampY(vp.Height)); err != nil {
		return failed(fmt.Errorf("scroll: %w", err))
	}
	return ok("Scrolled to main content")
}

func (e *Executor) scrollTop(ctx context.Context) Outcome {
	if err := e.page.ScrollTo(ctx, 0); err != nil {
		return failed(fmt.Errorf("scroll: %w", err))
	}
	return ok("Back to top")
}
