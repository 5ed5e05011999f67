// Package search implements the product search strategy layer: alternative
// query generation, sequential retry search against a single provider, and
// concurrent multi-provider aggregation.
//
// The package is deliberately ignorant of how a provider search is executed;
// it drives any [Searcher] implementation (in production, the browser
// adapter) and owns only the orchestration semantics.
package search

import "strings"

// maxAlternatives caps the number of query variants tried per search.
const maxAlternatives = 5

// brandMapping maps a known brand token to generic fallback terms. Order
// matters twice: the table is scanned top to bottom and the first matching
// brand wins, and the mapped terms are appended in the order listed.
type brandMapping struct {
	brand string
	terms []string
}

// brandMappings covers the brands users most often ask for by name alone.
var brandMappings = []brandMapping{
	{"maggi", []string{"instant noodles", "noodles", "maggi noodles", "masala noodles"}},
	{"lays", []string{"chips", "potato chips", "lays chips"}},
	{"kurkure", []string{"namkeen", "snacks", "kurkure namkeen"}},
	{"parle g", []string{"biscuits", "parle biscuits", "glucose biscuits"}},
	{"oreo", []string{"biscuits", "cream biscuits", "oreo biscuits"}},
	{"bread", []string{"bread", "sandwich bread", "white bread"}},
	{"doodh", []string{"milk", "doodh", "toned milk"}},
	{"chai", []string{"tea", "chai", "tea leaves"}},
	{"atta", []string{"wheat flour", "atta", "flour"}},
	{"chawal", []string{"rice", "chawal", "basmati rice"}},
}

// unitTokens are quantity markers whose presence suppresses the
// quantity-qualified variants.
var unitTokens = []string{"pack", "kg", "gm", "ltr", "ml"}

// Alternatives generates an ordered list of up to five unique search terms to
// try for query, most promising first. The first element is always the
// trimmed original query. The function is pure: same input, same output, no
// side effects.
//
// Variants are produced in three passes: generic terms for a recognised brand
// token (first table match wins), the first and last words of a multi-word
// query, and quantity-qualified forms when the query names no pack size.
// Duplicates are removed case- and whitespace-insensitively, keeping the
// first occurrence.
func Alternatives(query string) []string {
	query = strings.TrimSpace(query)
	candidates := []string{query}
	lower := strings.ToLower(query)

	for _, m := range brandMappings {
		if strings.Contains(lower, m.brand) {
			candidates = append(candidates, m.terms...)
			break
		}
	}

	// A multi-word query is often "<brand> <noun>" — either half alone can
	// match where the full phrase does not.
	words := strings.Fields(query)
	if len(words) > 1 {
		candidates = append(candidates, words[0], words[len(words)-1])
	}

	if !containsAny(lower, unitTokens) {
		candidates = append(candidates, query+" 1kg", query+" 500g")
	}

	return dedupe(candidates, maxAlternatives)
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// dedupe removes duplicates case- and trim-insensitively, preserving
// first-seen order, drops entries that are empty after trimming, and caps
// the result at limit.
func dedupe(in []string, limit int) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, limit)
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
