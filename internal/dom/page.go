package dom

import "context"

// Viewport describes the scroll state of a page
type Viewport struct {
	ScrollX      float64 `json:"scrollX"`
	ScrollY      float64 `json:"scrollY"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	ScrollHeight float64 `json:"scrollHeight"`
}

// MaxScrollY is the largest reachable vertical offset
func (v Viewport) MaxScrollY() float64 {
	if m := v.ScrollHeight - v.Height; m > 0 {
		return m
	}
	return 0
}

// ClampY limits y to [0, MaxScrollY]
func (v Viewport) ClampY(y float64) float64 {
	if y < 0 {
		return 0
	}
	if m := v.MaxScrollY(); y > m {
		return m
	}
	return y
}

// Align is where ScrollIntoView places an element
type Align string

const (
	AlignCenter Align = "center"
	AlignStart  Align = "start"
)

// Page is a live page the runtime can read and act on. Snapshot is taken
// fresh for every command; elements passed to the action methods must come
// from the most recent snapshot.
type Page interface {
	// URL returns the current page address
	URL() string
	// Snapshot parses the current DOM
	Snapshot(ctx context.Context) (*Document, error)
	// Viewport returns the current scroll state
	Viewport(ctx context.Context) (Viewport, error)
	// ScrollTo scrolls the window to vertical offset y
	ScrollTo(ctx context.Context, y float64) error
	// ScrollIntoView brings el into the viewport, centered or at the top
	ScrollIntoView(ctx context.Context, el *Element, align Align) error
	// Click dispatches a click on el
	Click(ctx context.Context, el *Element) error
	// SetValue sets a form control's value and dispatches input and change
	SetValue(ctx context.Context, el *Element, value string) error
	// Load performs a full page load of url
	Load(ctx context.Context, url string) error
}
