package search_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/bolke-ai/bolke/internal/search"
)

// ─── TestAlternatives_OriginalFirst ──────────────────────────────────────────

func TestAlternatives_OriginalFirst(t *testing.T) {
	t.Parallel()

	for _, query := range []string{"maggi", "  amul milk 1 ltr  ", "bread"} {
		alts := search.Alternatives(query)
		if len(alts) == 0 {
			t.Fatalf("Alternatives(%q) returned nothing", query)
		}
		if want := strings.TrimSpace(query); alts[0] != want {
			t.Errorf("Alternatives(%q)[0] = %q, want trimmed original %q", query, alts[0], want)
		}
	}
}

// ─── TestAlternatives_CapAndUniqueness ───────────────────────────────────────

func TestAlternatives_CapAndUniqueness(t *testing.T) {
	t.Parallel()

	alts := search.Alternatives("maggi masala noodles")
	if len(alts) > 5 {
		t.Fatalf("want at most 5 alternatives, got %d: %v", len(alts), alts)
	}

	seen := map[string]bool{}
	for _, a := range alts {
		key := strings.ToLower(strings.TrimSpace(a))
		if seen[key] {
			t.Errorf("duplicate alternative %q in %v", a, alts)
		}
		seen[key] = true
	}
}

// ─── TestAlternatives_BrandFallbacks ─────────────────────────────────────────

func TestAlternatives_BrandFallbacks(t *testing.T) {
	t.Parallel()

	alts := search.Alternatives("Maggi")
	if !slices.Contains(alts, "instant noodles") {
		t.Errorf("want generic fallback %q for Maggi, got %v", "instant noodles", alts)
	}

	alts = search.Alternatives("doodh")
	if !slices.Contains(alts, "milk") {
		t.Errorf("want %q for doodh, got %v", "milk", alts)
	}
}

// ─── TestAlternatives_FirstAndLastWord ───────────────────────────────────────

func TestAlternatives_FirstAndLastWord(t *testing.T) {
	t.Parallel()

	alts := search.Alternatives("amul butter")
	if !slices.Contains(alts, "amul") || !slices.Contains(alts, "butter") {
		t.Errorf("want first and last word variants for %q, got %v", "amul butter", alts)
	}
}

// ─── TestAlternatives_QuantityVariants ───────────────────────────────────────

func TestAlternatives_QuantityVariants(t *testing.T) {
	t.Parallel()

	// No unit token: quantity-qualified variants are appended.
	alts := search.Alternatives("sugar")
	if !slices.Contains(alts, "sugar 1kg") || !slices.Contains(alts, "sugar 500g") {
		t.Errorf("want quantity variants for %q, got %v", "sugar", alts)
	}

	// Unit token present: no quantity variants.
	alts = search.Alternatives("sugar 1kg")
	for _, a := range alts {
		if strings.HasSuffix(a, "1kg 1kg") || strings.HasSuffix(a, "1kg 500g") {
			t.Errorf("unexpected quantity variant %q for query already naming a pack size", a)
		}
	}
}

// ─── TestAlternatives_Deterministic ──────────────────────────────────────────

func TestAlternatives_Deterministic(t *testing.T) {
	t.Parallel()

	first := search.Alternatives("maggi noodles")
	for range 20 {
		if got := search.Alternatives("maggi noodles"); !slices.Equal(got, first) {
			t.Fatalf("Alternatives not deterministic: %v vs %v", got, first)
		}
	}
}

// ─── TestAlternatives_EmptyQuery ─────────────────────────────────────────────

func TestAlternatives_EmptyQuery(t *testing.T) {
	t.Parallel()

	// A blank query produces only the quantity variants of the empty string,
	// which dedupe drops as empty; nothing usable must leak through as "".
	for _, a := range search.Alternatives("   ") {
		if strings.TrimSpace(a) == "" {
			t.Errorf("blank alternative %q returned for empty query", a)
		}
	}
}
