package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/voicenav/internal/dom"
	"github.com/roelfdiedericks/voicenav/internal/protocol"
)

func parse(t *testing.T, src string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(src, "https://shop.example/")
	require.NoError(t, err)
	return doc
}

const grid = `<body><main>
  <div class="grid">
    <div class="card"><h3>Blue Sneakers</h3><p>$80</p><button id="blue-add">Add to Cart</button></div>
    <div class="card"><h3>Red Sneakers</h3><p>$90</p><button id="red-add">Add to Cart</button></div>
    <div class="card"><h3>Green Sneakers</h3><p>$70</p>
      <a href="/cart" class="clickable" id="green-add"><span>Add to Cart</span></a></div>
  </div>
</main></body>`

func TestResolveVisibleSubmit(t *testing.T) {
	doc := parse(t, `<body>
		<button id="hidden" style="display: none">Submit</button>
		<button id="shown">Submit</button>
	</body>`)

	el, err := Default().Resolve(doc, Query{Text: "Submit", ElementType: "button"})
	require.NoError(t, err)
	assert.Equal(t, "shown", el.ID())
}

func TestResolveWithContext(t *testing.T) {
	doc := parse(t, grid)

	tests := []struct {
		name    string
		context string
		want    string
	}{
		{"red card", "Red Sneakers", "red-add"},
		{"blue card", "blue sneakers", "blue-add"},
		{"promoted to interactive ancestor", "Green Sneakers", "green-add"},
		{"context by price", "$90", "red-add"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := Default().Resolve(doc, Query{Text: "Add to Cart", ContextText: tt.context})
			require.NoError(t, err)
			assert.Equal(t, tt.want, el.ID())
		})
	}
}

func TestContextStrategyDoesNotCrossItems(t *testing.T) {
	doc := parse(t, grid)
	// the grid mentions every product, but no single card mentions "Purple"
	el := ContextStrategy{}.Find(doc, Query{Text: "Add to Cart", ContextText: "Purple"})
	assert.Nil(t, el)

	// falls through to the text strategy, first in document order
	el, err := Default().Resolve(doc, Query{Text: "Add to Cart", ContextText: "Purple"})
	require.NoError(t, err)
	assert.Equal(t, "blue-add", el.ID())
}

func TestResolveWithSectionContext(t *testing.T) {
	doc := parse(t, `<body><main>
	  <section><h2>Sale</h2>
	    <div class="card"><h3>Canvas Tote</h3><button id="sale-1">Add to Cart</button></div>
	    <div class="card"><h3>Wool Scarf</h3><button id="sale-2">Add to Cart</button></div>
	  </section>
	  <section><h2>Featured</h2>
	    <div class="card"><h3>Rain Jacket</h3><button id="feat-1">Add to Cart</button></div>
	    <div class="card"><h3>Trail Boots</h3><button id="feat-2">Add to Cart</button></div>
	  </section>
	</main></body>`)

	el := ContextStrategy{}.Find(doc, Query{Text: "Add to Cart", ContextText: "Featured"})
	require.NotNil(t, el)
	assert.Equal(t, "feat-1", el.ID())

	el, err := Default().Resolve(doc, Query{Text: "Add to Cart", ContextText: "featured", Nth: 1})
	require.NoError(t, err)
	assert.Equal(t, "feat-2", el.ID())

	// an item-level match still wins over the section fallback
	el, err = Default().Resolve(doc, Query{Text: "Add to Cart", ContextText: "Wool Scarf"})
	require.NoError(t, err)
	assert.Equal(t, "sale-2", el.ID())
}

func TestResolveNthMatch(t *testing.T) {
	doc := parse(t, grid)

	tests := []struct {
		nth  int
		want string
	}{
		{0, "blue-add"},
		{1, "red-add"},
		{2, "green-add"},
	}
	for _, tt := range tests {
		el, err := Default().Resolve(doc, Query{Text: "add to cart", Nth: tt.nth})
		require.NoError(t, err)
		assert.Equal(t, tt.want, el.ID())
	}

	_, err := Default().Resolve(doc, Query{Text: "add to cart", Nth: 3})
	assert.True(t, errors.Is(err, protocol.ErrResolution))
}

func TestResolveMatchesAttributes(t *testing.T) {
	doc := parse(t, `<body>
		<button id="x" aria-label="Close dialog">×</button>
		<a id="help" title="Open help center" href="/help">?</a>
		<input id="go" type="submit" value="Search now">
		<div id="tab" role="tab">Reviews</div>
	</body>`)

	tests := []struct {
		query Query
		want  string
	}{
		{Query{Text: "close"}, "x"},
		{Query{Text: "help center", ElementType: "link"}, "help"},
		{Query{Text: "search", ElementType: "button"}, "go"},
		{Query{Text: "reviews"}, "tab"},
		{Query{Text: "reviews", ElementType: `[role="tab"]`}, "tab"},
	}
	for _, tt := range tests {
		t.Run(tt.query.String(), func(t *testing.T) {
			el, err := Default().Resolve(doc, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, el.ID())
		})
	}
}

func TestResolveFailure(t *testing.T) {
	doc := parse(t, `<body><p>Nothing to click</p></body>`)
	_, err := Default().Resolve(doc, Query{Text: "Checkout"})
	assert.ErrorIs(t, err, protocol.ErrResolution)

	_, err = Default().Resolve(doc, Query{Text: "  "})
	assert.ErrorIs(t, err, protocol.ErrResolution)
}

func TestSelectorFor(t *testing.T) {
	assert.Equal(t, ButtonSelector, SelectorFor("Button"))
	assert.Equal(t, LinkSelector, SelectorFor("link"))
	assert.Equal(t, InputSelector, SelectorFor("input"))
	assert.Equal(t, InteractiveSelector, SelectorFor(""))
	assert.Equal(t, "li.item", SelectorFor("li.item"))
	assert.Equal(t, InteractiveSelector, SelectorFor("[[nope"))
}

func TestFieldResolver(t *testing.T) {
	doc := parse(t, `<body><form>
		<input type="hidden" name="email_token">
		<label for="f1">Full name</label><input id="f1" name="n">
		<label>Email Address <input id="f2" name="contact"></label>
		<input id="f3" name="phone_number" placeholder="Phone">
		<input id="f4" placeholder="Search products">
		<textarea id="f5" name="message"></textarea>
		<input id="f6" name="zip" style="display:none">
	</form></body>`)

	tests := []struct {
		hint string
		want string
	}{
		{"email", "f2"},        // label with nested control; hidden input skipped
		{"full name", "f1"},    // label for=
		{"phone number", "f3"}, // name, punctuation ignored
		{"search", "f4"},       // placeholder
		{"message", "f5"},
	}
	r := NewFieldResolver()
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			el, err := r.Resolve(doc, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, el.ID())
		})
	}

	_, err := r.Resolve(doc, "zip")
	assert.ErrorIs(t, err, protocol.ErrResolution, "invisible controls are skipped")
}

func TestFieldStrategyOrder(t *testing.T) {
	doc := parse(t, `<body>
		<input id="by-placeholder" placeholder="email">
		<input id="by-name" name="email">
	</body>`)
	el, err := NewFieldResolver().Resolve(doc, "email")
	require.NoError(t, err)
	assert.Equal(t, "by-name", el.ID(), "name beats placeholder regardless of order")
}

func TestFindSection(t *testing.T) {
	doc := parse(t, `<body>
		<section id="intro"><h2>Welcome</h2></section>
		<section id="our-pricing-plans"><h2>Plans</h2></section>
		<div data-section="faq"><h2>Questions</h2></div>
		<div id="customer-stories"></div>
		<div><h2>Meet the Team</h2></div>
		<section id="hidden-bit" style="display:none"><h2>Secret Team</h2></section>
	</body>`)

	tests := []struct {
		name string
		want string
	}{
		{"customer stories", "customer-stories"},
		{"pricing", "our-pricing-plans"},
		{"FAQ", ""},
		{"team meet", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := FindSection(doc, tt.name)
			require.NoError(t, err)
			switch tt.name {
			case "FAQ":
				assert.Equal(t, "faq", el.Attr("data-section"))
			case "team meet":
				assert.Equal(t, "Meet the Team", el.NormText())
			default:
				assert.Equal(t, tt.want, el.ID())
			}
		})
	}

	_, err := FindSection(doc, "secret")
	assert.ErrorIs(t, err, protocol.ErrResolution)
}
