// Package subst validates, resolves and applies parameter-token substitution
// mappings. A mapping renumbers {N} tokens inside cell text; before anything
// is written back it must be cycle-free, otherwise repeated substitution
// would oscillate (1→2, 2→1). Cycles are never rejected: they are collapsed
// to a single terminal value and the caller is told an auto-fix happened.
package subst

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"paramlens/internal/token"
)

// ValidationError reports a user-entered replacement that cannot be applied.
// The save path must stop before any text is touched.
type ValidationError struct {
	Token int    // original token value the entry belongs to
	Input string // what the user typed
}

func (e *ValidationError) Error() string {
	if strings.TrimSpace(e.Input) == "" {
		return fmt.Sprintf("replacement for {%d} is empty", e.Token)
	}
	return fmt.Sprintf("replacement for {%d} is not a number: %q", e.Token, e.Input)
}

// ParseMapping converts raw editor input (original token → typed replacement)
// into an integer mapping. Every entry is validated; the first invalid entry
// (lowest token value, for determinism) aborts the parse. Values are never
// coerced or silently skipped.
func ParseMapping(entries map[int]string) (map[int]int, error) {
	keys := make([]int, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	mapping := make(map[int]int, len(entries))
	for _, k := range keys {
		raw := strings.TrimSpace(entries[k])
		if raw == "" {
			return nil, &ValidationError{Token: k, Input: entries[k]}
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, &ValidationError{Token: k, Input: entries[k]}
		}
		mapping[k] = n
	}
	return mapping, nil
}

// Resolve rewrites a mapping so that applying it once is final. The mapping
// is a functional graph (out-degree ≤ 1): an edge x→y exists iff
// mapping[x] == y and x != y. Every component that contains a cycle is
// collapsed so each member, tail nodes included, points directly at the
// cycle's terminal; the lowest original value in the cycle is chosen as the
// terminal, which keeps resolution deterministic regardless of map iteration
// order. Components without a cycle pass through unchanged since one-pass
// application already handles them. The second return value reports whether
// any cycle was collapsed, so the caller can surface the auto-fix.
func Resolve(mapping map[int]int) (map[int]int, bool) {
	next := make(map[int]int, len(mapping))
	for from, to := range mapping {
		if from != to {
			next[from] = to
		}
	}

	resolved := make(map[int]int, len(next))
	for from, to := range next {
		resolved[from] = to
	}

	const (
		unvisited = iota
		done
	)
	state := make(map[int]int, len(next))
	collapse := make(map[int]int) // node → terminal, for cyclic components

	starts := make([]int, 0, len(next))
	for n := range next {
		starts = append(starts, n)
	}
	sort.Ints(starts)

	for _, start := range starts {
		if state[start] != unvisited {
			continue
		}

		// Walk the chain with an explicit path; with out-degree ≤ 1 a
		// depth-first traversal degenerates to following the single edge.
		path := []int{start}
		onPath := map[int]int{start: 0}
		cur := start
		for {
			nxt, ok := next[cur]
			if !ok {
				break // chain ends at a value that maps nowhere
			}
			if idx, hit := onPath[nxt]; hit {
				// Revisited a node on the current path: cycle path[idx:].
				term := path[idx]
				for _, n := range path[idx:] {
					if n < term {
						term = n
					}
				}
				for _, n := range path {
					collapse[n] = term
				}
				break
			}
			if state[nxt] == done {
				// Joined an already-walked chain; inherit its fate.
				if term, cyclic := collapse[nxt]; cyclic {
					for _, n := range path {
						collapse[n] = term
					}
				}
				break
			}
			onPath[nxt] = len(path)
			path = append(path, nxt)
			cur = nxt
		}
		for _, n := range path {
			state[n] = done
		}
	}

	fixed := false
	for n, term := range collapse {
		fixed = true
		if n == term {
			delete(resolved, n) // the terminal keeps its value
		} else {
			resolved[n] = term
		}
	}
	return resolved, fixed
}

// Apply substitutes tokens in text according to mapping and returns the new
// text; the input is not mutated. Replacement is a single pass over exact
// {N} tokens, so {12} is never touched by an entry for 1 or 2, and chained
// entries (1→2, 2→3) apply simultaneously rather than cascading.
func Apply(text string, mapping map[int]int) string {
	if len(mapping) == 0 {
		return text
	}
	return token.Pattern.ReplaceAllStringFunc(text, func(match string) string {
		n, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil {
			return match
		}
		to, ok := mapping[n]
		if !ok || to == n {
			return match
		}
		return fmt.Sprintf("{%d}", to)
	})
}
