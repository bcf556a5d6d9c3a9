// Package token extracts brace-delimited integer parameter tokens from
// datasheet cell text. A token is an integer written as {N}; anything else
// between braces is ignored rather than reported.
package token

import (
	"regexp"
	"sort"
	"strconv"
)

// Pattern matches a single parameter token. Only unsigned decimal digits
// qualify; {1a}, {-2} and {} are not tokens.
var Pattern = regexp.MustCompile(`\{(\d+)\}`)

// Extract returns every parameter token found in text, sorted ascending.
// Duplicates are preserved: "{2}{1}{2}" yields [1 2 2]. Token-free text
// yields nil so callers can distinguish "no tokens" from "[0]".
func Extract(text string) []int {
	matches := Pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	tokens := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// Digit runs longer than an int only; skip rather than fail.
			continue
		}
		tokens = append(tokens, n)
	}
	if len(tokens) == 0 {
		return nil
	}

	sort.Ints(tokens)
	return tokens
}

// Equal reports whether two sorted token sequences carry the same multiset
// of values. Both arguments must already be sorted (Extract output is).
func Equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
