package actions

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/pagecontext"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
)

const storePage = `<!doctype html><html><head><title>Store</title></head><body>
<header><nav><a href="/">Home</a><a href="/cart">Cart</a></nav></header>
<section id="featured"><h2>Featured</h2>
  <div class="card"><h3>Blue Sneakers</h3><button id="blue-add">Add to Cart</button></div>
  <div class="card"><h3>Red Sneakers</h3><button id="red-add">Add to Cart</button></div>
</section>
<section id="newsletter"><h2>Newsletter</h2>
  <form>
    <input type="hidden" name="token" value="t">
    <label for="em">Email</label><input id="em" name="email" type="email">
    <textarea id="notes" name="notes"></textarea>
    <label><input id="terms" type="checkbox"> Accept terms</label>
  </form>
</section>
</body></html>`

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func newStore(t *testing.T, opts ...Option) (*Executor, *dom.StaticPage) {
	t.Helper()
	page, err := dom.NewStaticPage(storePage, "https://shop.example/home")
	require.NoError(t, err)
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return NewExecutor(page, opts...), page
}

func elementByID(t *testing.T, page *dom.StaticPage, id string) *dom.Element {
	t.Helper()
	doc, err := page.Snapshot(context.Background())
	require.NoError(t, err)
	el := doc.Query("#" + id)
	require.NotNil(t, el, "missing #%s", id)
	return el
}

func scrollY(t *testing.T, page *dom.StaticPage) float64 {
	t.Helper()
	vp, err := page.Viewport(context.Background())
	require.NoError(t, err)
	return vp.ScrollY
}

func TestScrollDirections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		from      float64
		direction string
		want      float64
	}{
		{1000, "top", 0},
		{1000, "beginning", 0},
		{0, "down", 160},
		{0, "next", 160},
		{100, "up", 0},
		{1000, "previous", 840},
		{0, "bottom", 3200},
		{3150, "down", 3200},
		{0, "middle", 2000},
		{0, "sideways", 160}, // unknown and not a section: one step down
	}
	for _, tt := range tests {
		t.Run(tt.direction, func(t *testing.T) {
			x, page := newStore(t)
			require.NoError(t, page.ScrollTo(ctx, tt.from))

			out := x.Execute(ctx, protocol.ScrollPage{Direction: tt.direction})
			require.True(t, out.Success, out.Error())
			assert.Equal(t, tt.want, scrollY(t, page))
		})
	}
}

func TestScrollToSection(t *testing.T) {
	ctx := context.Background()
	x, page := newStore(t)

	out := x.Execute(ctx, protocol.ScrollPage{TargetSection: "newsletter"})
	require.True(t, out.Success, out.Error())
	assert.Equal(t, "Scrolled to newsletter", out.Message)
	assert.Greater(t, scrollY(t, page), 0.0)

	// an unknown section falls back to the direction
	require.NoError(t, page.ScrollTo(ctx, 0))
	out = x.Execute(ctx, protocol.ScrollPage{TargetSection: "reviews", Direction: "down"})
	require.True(t, out.Success)
	assert.Equal(t, 160.0, scrollY(t, page))
}

type alignPage struct {
	*dom.StaticPage
	aligns []dom.Align
}

func (p *alignPage) ScrollIntoView(ctx context.Context, el *dom.Element, align dom.Align) error {
	p.aligns = append(p.aligns, align)
	return p.StaticPage.ScrollIntoView(ctx, el, align)
}

func TestSectionScrollAlignsToTop(t *testing.T) {
	ctx := context.Background()
	static, err := dom.NewStaticPage(storePage, "https://shop.example/home")
	require.NoError(t, err)
	page := &alignPage{StaticPage: static}
	x := NewExecutor(page, WithSettleDelay(0))

	require.True(t, x.Execute(ctx, protocol.ScrollPage{TargetSection: "newsletter"}).Success)
	require.True(t, x.Execute(ctx, protocol.ClickElement{TargetText: "Add to Cart"}).Success)
	assert.Equal(t, []dom.Align{dom.AlignStart, dom.AlignCenter}, page.aligns)
}

func TestScrollToContentAndTop(t *testing.T) {
	ctx := context.Background()
	x, page := newStore(t)

	require.True(t, x.Execute(ctx, protocol.ScrollToContent{}).Success)
	assert.Equal(t, 800.0, scrollY(t, page))

	require.True(t, x.Execute(ctx, protocol.GoBackToTop{}).Success)
	assert.Equal(t, 0.0, scrollY(t, page))
}

func TestClickWithContext(t *testing.T) {
	ctx := context.Background()
	x, page := newStore(t)

	out := x.Execute(ctx, protocol.ClickElement{TargetText: "Add to Cart", ContextText: "Red Sneakers"})
	require.True(t, out.Success, out.Error())
	assert.Equal(t, []string{"click"}, page.EventsFor(elementByID(t, page, "red-add").Node()))
	assert.Empty(t, page.EventsFor(elementByID(t, page, "blue-add").Node()))

	out = x.Execute(ctx, protocol.ClickElement{TargetText: "Add to Cart", ParentContains: "Blue Sneakers"})
	require.True(t, out.Success, out.Error())
	assert.Equal(t, []string{"click"}, page.EventsFor(elementByID(t, page, "blue-add").Node()))
}

func TestClickByIndex(t *testing.T) {
	ctx := context.Background()
	x, page := newStore(t)

	// nth match among text matches
	second := protocol.Index(1)
	out := x.Execute(ctx, protocol.ClickElement{TargetText: "add to cart", ElementIndex: &second})
	require.True(t, out.Success, out.Error())
	assert.Equal(t, []string{"click"}, page.EventsFor(elementByID(t, page, "red-add").Node()))

	// with no text, the index addresses the page context listing
	doc, err := page.Snapshot(ctx)
	require.NoError(t, err)
	targets := pagecontext.InteractiveTargets(doc)
	require.NotEmpty(t, targets)
	last := protocol.Index(len(targets) - 1)
	out = x.Execute(ctx, protocol.ClickElement{ElementIndex: &last})
	require.True(t, out.Success, out.Error())
	assert.Contains(t, page.EventsFor(targets[len(targets)-1].Node()), "click")

	beyond := protocol.Index(len(targets))
	out = x.Execute(ctx, protocol.ClickElement{ElementIndex: &beyond})
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, protocol.ErrResolution)
}

func TestClickNotFound(t *testing.T) {
	x, _ := newStore(t)
	out := x.Execute(context.Background(), protocol.ClickElement{TargetText: "Checkout"})
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, protocol.ErrResolution)
	assert.NotEmpty(t, out.Message)
}

func TestFillEmail(t *testing.T) {
	ctx := context.Background()
	x, page := newStore(t)

	out := x.Execute(ctx, protocol.FillField{Value: "jane@example.com", FieldHint: "email"})
	require.True(t, out.Success, out.Error())

	email := elementByID(t, page, "em")
	assert.Equal(t, "jane@example.com", email.Value())
	assert.Equal(t, []string{"input", "change"}, page.EventsFor(email.Node()))
}

func TestFillFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("focused control", func(t *testing.T) {
		x, page := newStore(t)
		page.Focus(elementByID(t, page, "notes"))
		out := x.Execute(ctx, protocol.FillField{Value: "leave at door"})
		require.True(t, out.Success, out.Error())
		assert.Equal(t, "leave at door", elementByID(t, page, "notes").Value())
	})

	t.Run("first visible input", func(t *testing.T) {
		x, page := newStore(t)
		out := x.Execute(ctx, protocol.FillField{Value: "a@b.c", FieldHint: "nickname"})
		require.True(t, out.Success, out.Error())
		assert.Equal(t, "a@b.c", elementByID(t, page, "em").Value(), "hidden inputs are skipped")
	})

	t.Run("no fields", func(t *testing.T) {
		page, err := dom.NewStaticPage(`<body><p>nothing</p></body>`, "https://x.test/")
		require.NoError(t, err)
		out := NewExecutor(page, WithSettleDelay(0)).Execute(ctx, protocol.FillField{Value: "x"})
		assert.ErrorIs(t, out.Err, protocol.ErrResolution)
	})
}

func TestToggle(t *testing.T) {
	page, err := dom.NewStaticPage(`<body><label>Dark mode <input id="dm" type="checkbox" aria-label="dark mode"></label></body>`, "https://x.test/")
	require.NoError(t, err)
	x := NewExecutor(page, WithSettleDelay(0))

	out := x.Execute(context.Background(), protocol.ToggleElement{Target: "dark mode"})
	require.True(t, out.Success, out.Error())
	assert.True(t, elementByID(t, page, "dm").HasAttr("checked"))

	out = x.Execute(context.Background(), protocol.ToggleElement{Target: "light mode"})
	assert.ErrorIs(t, out.Err, protocol.ErrResolution)
}

func TestNavigate(t *testing.T) {
	ctx := context.Background()

	t.Run("client-side route", func(t *testing.T) {
		var got []string
		nav := NavigatorFunc(func(_ context.Context, path string) error {
			got = append(got, path)
			return nil
		})
		x, _ := newStore(t, WithNavigator(nav))

		out := x.Execute(ctx, protocol.NavigateToPage{URL: "/cart?step=1#summary", PageName: "cart"})
		require.True(t, out.Success, out.Error())
		assert.Equal(t, "Navigated to cart", out.Message)

		out = x.Execute(ctx, protocol.NavigateToPage{URL: "https://shop.example:443/orders"})
		require.True(t, out.Success, out.Error())
		assert.Equal(t, []string{"/cart?step=1#summary", "/orders"}, got)
	})

	t.Run("full load without a router", func(t *testing.T) {
		x, page := newStore(t)
		out := x.Execute(ctx, protocol.NavigateToPage{URL: "account"})
		require.True(t, out.Success, out.Error())
		assert.Equal(t, "https://shop.example/account", page.URL())
	})

	t.Run("rejected", func(t *testing.T) {
		x, page := newStore(t)
		for _, raw := range []string{
			"https://evil.example/phish",
			"http://shop.example/home",
			"javascript:alert(1)",
			"data:text/html,hi",
		} {
			out := x.Execute(ctx, protocol.NavigateToPage{URL: raw})
			assert.False(t, out.Success, raw)
			assert.ErrorIs(t, out.Err, protocol.ErrNavigationRejected, raw)
		}
		assert.Equal(t, "https://shop.example/home", page.URL())
	})

	t.Run("router failure falls back to a full load", func(t *testing.T) {
		offline := NavigatorFunc(func(context.Context, string) error {
			return errors.New("router offline")
		})
		x, page := newStore(t, WithNavigator(offline))
		out := x.Execute(ctx, protocol.NavigateToPage{URL: "/cart", PageName: "cart"})
		require.True(t, out.Success, out.Error())
		assert.Equal(t, "Navigated to cart", out.Message)
		assert.Equal(t, "https://shop.example/cart", page.URL())

		page.SetFetcher(func(context.Context, string) (io.ReadCloser, error) {
			return nil, errors.New("connection refused")
		})
		out = x.Execute(ctx, protocol.NavigateToPage{URL: "/orders"})
		assert.False(t, out.Success)
		assert.Contains(t, out.Error(), "connection refused")
	})
}

func TestResolveNavigation(t *testing.T) {
	tests := []struct {
		raw      string
		wantPath string
		wantErr  bool
	}{
		{"/", "/", false},
		{"products/42", "/products/42", false},
		{"?q=shoes", "/home?q=shoes", false},
		{"https://shop.example", "/", false},
		{"//shop.example/x", "/x", false},
		{"//other.example/x", "", true},
		{"https://shop.example:8443/", "", true},
		{"ftp://shop.example/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, path, err := ResolveNavigation("https://shop.example/home", tt.raw)
			if tt.wantErr {
				var navErr *NavigationError
				require.ErrorAs(t, err, &navErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestGetPageContext(t *testing.T) {
	x, _ := newStore(t)
	out := x.Execute(context.Background(), protocol.GetPageContext{DetailLevel: protocol.DetailMinimal})
	require.True(t, out.Success, out.Error())

	snap, ok := out.Result.(*pagecontext.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "Store", snap.Title)
	assert.Equal(t, "https://shop.example/home", snap.URL)
	assert.Len(t, snap.Navigation, 2)
	assert.Nil(t, snap.InteractiveElements)
}

func TestNotices(t *testing.T) {
	rec := &recorder{}
	x, _ := newStore(t, WithNotifier(rec))
	ctx := WithRequestID(context.Background(), "call-1-1700000000000")

	x.Execute(ctx, protocol.GoBackToTop{})
	x.Execute(ctx, protocol.ClickElement{TargetText: "missing"})
	x.Execute(ctx, protocol.GetPageContext{})

	notices := rec.all()
	require.Len(t, notices, 2, "read commands produce no notice")
	assert.Equal(t, Notice{RequestID: "call-1-1700000000000", Function: protocol.FnGoBackToTop, Message: "Back to top", Success: true}, notices[0])
	assert.False(t, notices[1].Success)
	assert.Equal(t, protocol.FnClickElement, notices[1].Function)
}

func TestSettleDelayHonorsContext(t *testing.T) {
	x, page := newStore(t, WithSettleDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := x.Execute(ctx, protocol.ClickElement{TargetText: "Add to Cart"})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Empty(t, page.EventsFor(elementByID(t, page, "blue-add").Node()), "no click after cancellation")
}

type panickyPage struct{ *dom.StaticPage }

func (panickyPage) ScrollTo(context.Context, float64) error { panic("renderer crashed") }

func TestExecuteRecoversPanics(t *testing.T) {
	page, err := dom.NewStaticPage(storePage, "https://shop.example/")
	require.NoError(t, err)
	x := NewExecutor(panickyPage{page}, WithSettleDelay(0))

	out := x.Execute(context.Background(), protocol.GoBackToTop{})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error(), "renderer crashed")
}
