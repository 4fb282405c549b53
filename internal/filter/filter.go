// Package filter decides cheaply whether a post can possibly carry a trade signal.
package filter

import "regexp"

// tickerPattern matches a $-prefixed uppercase ticker such as $ACME.
// The leading group keeps "US$5" or "abc$XYZ" from counting as a ticker.
var tickerPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9$])\$([A-Z]{1,6})\b`)

// Admit reports whether text contains at least one $TICKER token.
func Admit(text string) bool {
	return tickerPattern.MatchString(text)
}

// Tickers returns the distinct tickers mentioned in text, without the sigil, in order of appearance.
func Tickers(text string) []string {
	matches := tickerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// Mentions reports whether symbol appears in text as a $-prefixed token.
func Mentions(text, symbol string) bool {
	for _, t := range Tickers(text) {
		if t == symbol {
			return true
		}
	}
	return false
}
