package pagecontext

import (
	"regexp"
	"strings"
)

// Purposes inferred for interactive elements
const (
	PurposeIncrease  = "increase_quantity"
	PurposeDecrease  = "decrease_quantity"
	PurposeAddToCart = "add_to_cart"
	PurposeRemove    = "remove_from_cart"
	PurposeCheckout  = "checkout"
	PurposeDelete    = "delete"
	PurposeEdit      = "edit"
	PurposeClose     = "close"
	PurposeSave      = "save"
	PurposeCancel    = "cancel"
	PurposeSubmit    = "submit"
	PurposeWishlist  = "add_to_wishlist"
	PurposeNext      = "navigate_next"
	PurposePrevious  = "navigate_previous"
	PurposeAction    = "action"
)

type purposeRule struct {
	purpose string
	match   func(text string) bool
}

func anyOf(words ...string) func(string) bool {
	return func(text string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}
}

// words matches whole words only, so "close" skips "closeout"
func words(ws ...string) func(string) bool {
	re := regexp.MustCompile(`\b(?:` + strings.Join(ws, "|") + `)\b`)
	return re.MatchString
}

func exactly(symbols ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range symbols {
			if text == s {
				return true
			}
		}
		return false
	}
}

func either(fns ...func(string) bool) func(string) bool {
	return func(text string) bool {
		for _, f := range fns {
			if f(text) {
				return true
			}
		}
		return false
	}
}

var purposeRules = []purposeRule{
	{PurposeIncrease, either(anyOf("increase", "increment", "add one", "add 1"), words("plus"), exactly("+", "＋"))},
	{PurposeDecrease, either(anyOf("decrease", "decrement", "remove one", "remove 1"), words("minus"), exactly("-", "−", "–"))},
	{PurposeAddToCart, anyOf("add to cart", "add to bag", "add to basket")},
	{PurposeRemove, func(t string) bool { return strings.Contains(t, "remove") && (strings.Contains(t, "cart") || strings.Contains(t, "bag")) }},
	{PurposeCheckout, either(anyOf("checkout", "check out"), words("proceed"))},
	{PurposeDelete, words("delete", "trash")},
	{PurposeEdit, words("edit", "modify")},
	{PurposeClose, either(words("close", "dismiss"), exactly("×", "✕", "x"))},
	{PurposeSave, words("save")},
	{PurposeCancel, words("cancel")},
	{PurposeSubmit, words("submit", "send")},
	{PurposeWishlist, either(anyOf("wishlist", "favorite", "favourite"), leadingWord("like"))},
	{PurposeNext, words("next", "forward")},
	{PurposePrevious, words("previous", "prev", "back")},
}

// leadingWord matches text that opens with w, e.g. "like" but not "looks like"
func leadingWord(w string) func(string) bool {
	re := regexp.MustCompile(`^` + w + `\b`)
	return re.MatchString
}

// DetectPurpose classifies a control from its text and aria-label. Rules
// are ordered; the first match wins.
func DetectPurpose(text, ariaLabel string) string {
	candidates := []string{
		strings.ToLower(strings.TrimSpace(ariaLabel)),
		strings.ToLower(strings.TrimSpace(text)),
	}
	for _, rule := range purposeRules {
		for _, c := range candidates {
			if c != "" && rule.match(c) {
				return rule.purpose
			}
		}
	}
	return PurposeAction
}

var priceRe = regexp.MustCompile(`[$€£¥₹]\s*\d|\d+[.,]\d{2}\b|\d+\s*(?:USD|EUR|GBP|ZAR)\b`)

// LooksLikePrice reports whether s contains a currency amount
func LooksLikePrice(s string) bool { return priceRe.MatchString(s) }
