package dom

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `<!doctype html>
<html><head><title> Shop  Home </title>
<style>
  .gone { display: none }
  .ghost, .faded { opacity: 0 }
  @media (max-width: 10px) { .tiny { display: none } }
</style></head>
<body>
  <nav><a href="/a">A</a></nav>
  <button id="b1">Submit</button>
  <button id="b2" style="display:none">Submit</button>
  <button id="b3" class="gone">Submit</button>
  <div style="visibility: hidden"><button id="b4">Inner</button>
    <div style="visibility: visible"><button id="b5">Shown</button></div></div>
  <div hidden><span id="s1">x</span></div>
  <span class="faded" id="s2">faded</span>
  <span class="tiny" id="s3">media</span>
  <input type="hidden" id="h1" name="token">
  <details><summary id="sum">More</summary><p id="det">Body</p></details>
  <p id="p1">Hello <b>big</b>   world</p>
</body></html>`

func parseFixture(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(fixture, "https://shop.example/home")
	require.NoError(t, err)
	return doc
}

func byID(t *testing.T, doc *Document, id string) *Element {
	t.Helper()
	el := doc.Query("#" + id)
	require.NotNil(t, el, "missing #%s", id)
	return el
}

func TestVisibility(t *testing.T) {
	doc := parseFixture(t)

	tests := []struct {
		id      string
		visible bool
	}{
		{"b1", true},
		{"b2", false}, // inline display:none
		{"b3", false}, // stylesheet display:none
		{"b4", false}, // inherited visibility:hidden
		{"b5", true},  // visibility re-enabled closer
		{"s1", false}, // hidden attribute on ancestor
		{"s2", false}, // opacity 0
		{"s3", true},  // media query rules are not applied
		{"h1", false}, // hidden input
		{"sum", true},
		{"det", false}, // closed details
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.visible, byID(t, doc, tt.id).Visible())
		})
	}
}

func TestLiveMarkersOverrideMarkup(t *testing.T) {
	doc, err := ParseString(`<body>
		<button id="a" data-vx-vis="0">A</button>
		<button id="b" style="display:none" data-vx-vis="1">B</button>
		<button id="c" data-vx-w="0" data-vx-h="20">C</button>
	</body>`, "https://x.test/")
	require.NoError(t, err)

	assert.False(t, byID(t, doc, "a").Visible())
	assert.True(t, byID(t, doc, "b").Visible())
	assert.False(t, byID(t, doc, "c").Visible())
}

func TestTextAndQueries(t *testing.T) {
	doc := parseFixture(t)

	assert.Equal(t, "Shop Home", doc.Title())
	assert.Equal(t, "Hello big world", byID(t, doc, "p1").NormText())
	assert.Equal(t, "Hello world", byID(t, doc, "p1").OwnText())

	buttons := doc.QueryAll("button")
	require.Len(t, buttons, 5)
	for i := 1; i < len(buttons); i++ {
		assert.Less(t, buttons[i-1].Index(), buttons[i].Index(), "document order")
	}

	inner := byID(t, doc, "b5")
	assert.Equal(t, "div", inner.Parent().Tag())
	assert.NotNil(t, inner.Closest("div[style*=hidden]"))
	assert.True(t, doc.Body().Contains(inner))
	assert.Nil(t, doc.QueryAll("button[[bad"))
	assert.False(t, ValidSelector("button[[bad"))
	assert.Empty(t, inner.QueryAll("button"), "QueryAll excludes the element itself")
}

func TestTextHelpers(t *testing.T) {
	assert.True(t, ContainsFold("Add to Cart", "add to"))
	assert.False(t, ContainsFold("Add to Cart", "  "))
	assert.Equal(t, "our-pricing-2", Slug("Our Pricing 2!"))
	assert.Equal(t, "héll", Truncate("héllo", 4))
}

func TestStaticPageActions(t *testing.T) {
	ctx := context.Background()
	page, err := NewStaticPage(`<body><form>
		<input id="email" name="email">
		<textarea id="msg">old</textarea>
		<input id="agree" type="checkbox">
	</form></body>`, "https://x.test/contact")
	require.NoError(t, err)

	doc, err := page.Snapshot(ctx)
	require.NoError(t, err)
	email := byID(t, doc, "email")
	require.NoError(t, page.SetValue(ctx, email, "jane@x.com"))
	assert.Equal(t, []string{"input", "change"}, page.EventsFor(email.Node()))

	msg := byID(t, doc, "msg")
	require.NoError(t, page.SetValue(ctx, msg, "hi"))

	agree := byID(t, doc, "agree")
	require.NoError(t, page.Click(ctx, agree))

	doc, err = page.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", byID(t, doc, "email").Value())
	assert.Equal(t, "hi", byID(t, doc, "msg").Value())
	assert.True(t, byID(t, doc, "agree").HasAttr("checked"))

	page.Focus(byID(t, doc, "msg"))
	doc, err = page.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, doc.Focused())
	assert.Equal(t, "msg", doc.Focused().ID())

	other, err := ParseString(`<body><button id="x">x</button></body>`, "")
	require.NoError(t, err)
	assert.Error(t, page.Click(ctx, byID(t, other, "x")), "foreign elements are rejected")
}

func TestStaticPageScrollClamps(t *testing.T) {
	ctx := context.Background()
	page, err := NewStaticPage(`<body><p>x</p></body>`, "https://x.test/")
	require.NoError(t, err)

	require.NoError(t, page.ScrollTo(ctx, 99999))
	vp, _ := page.Viewport(ctx)
	assert.Equal(t, 3200.0, vp.ScrollY)

	require.NoError(t, page.ScrollTo(ctx, -5))
	vp, _ = page.Viewport(ctx)
	assert.Equal(t, 0.0, vp.ScrollY)
}

func TestStaticPageScrollIntoViewAlign(t *testing.T) {
	ctx := context.Background()
	var b strings.Builder
	b.WriteString("<body>")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, `<p id="p%d">para</p>`, i)
	}
	b.WriteString("</body>")
	page, err := NewStaticPage(b.String(), "https://x.test/")
	require.NoError(t, err)

	doc, err := page.Snapshot(ctx)
	require.NoError(t, err)
	el := byID(t, doc, "p50")

	require.NoError(t, page.ScrollIntoView(ctx, el, AlignCenter))
	centered, _ := page.Viewport(ctx)
	require.NoError(t, page.ScrollIntoView(ctx, el, AlignStart))
	top, _ := page.Viewport(ctx)

	assert.Greater(t, centered.ScrollY, 0.0)
	assert.InDelta(t, centered.ScrollY+top.Height/2, top.ScrollY, 0.001)
}
