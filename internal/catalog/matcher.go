package catalog

import (
	"strings"
	"unicode/utf8"
)

// Match resolves free text to a catalog product. An exact substring match
// against a title wins immediately. Otherwise a candidate qualifies only
// when every significant token of its title (longer than 2 runes) appears
// in the message; the candidate matching the most tokens wins, earliest in
// catalog order on ties.
func Match(products []Product, message string) (Product, bool) {
	msg := strings.ToLower(strings.TrimSpace(message))

	var found Product
	var ok bool
	best := 0

	for _, p := range products {
		title := strings.ToLower(p.Title)

		if strings.Contains(msg, title) {
			return p, true
		}

		matched := 0
		significant := 0
		for _, w := range strings.Fields(title) {
			if utf8.RuneCountInString(w) <= 2 {
				continue
			}
			significant++
			if strings.Contains(msg, w) {
				matched++
			}
		}
		if significant > 0 && matched == significant && matched > best {
			found, ok, best = p, true, matched
		}
	}
	return found, ok
}

// Mentions reports whether the message plausibly refers to any product,
// either by full title or by any title token longer than 3 runes. Used to
// reroute misclassified messages while the catalog is on screen.
func Mentions(products []Product, message string) bool {
	msg := strings.ToLower(message)
	for _, p := range products {
		title := strings.ToLower(p.Title)
		if strings.Contains(msg, title) {
			return true
		}
		for _, w := range strings.Fields(title) {
			if utf8.RuneCountInString(w) > 3 && strings.Contains(msg, w) {
				return true
			}
		}
	}
	return false
}
