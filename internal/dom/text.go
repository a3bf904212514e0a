package dom

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize collapses runs of whitespace and trims the result
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsFold is a case-insensitive substring test. An empty needle never matches.
func ContainsFold(s, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// RuneLen returns the number of runes in s
func RuneLen(s string) int { return utf8.RuneCountInString(s) }

// Slug lowercases s and joins its words with hyphens: "Our Pricing" -> "our-pricing"
func Slug(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "-")
}
