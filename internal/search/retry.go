package search

import (
	"context"
	"log/slog"

	"github.com/bolke-ai/bolke/pkg/shop"
)

// Searcher is the provider search boundary driven by this package. In
// production it is the browser adapter; tests supply fakes.
//
// A search that finds nothing returns an empty slice and a nil error. A
// non-nil error means the attempt itself failed (browser launch, navigation
// crash) and says nothing about product availability.
type Searcher interface {
	Search(ctx context.Context, query, provider string, maxResults int) ([]shop.Product, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query, provider string, maxResults int) ([]shop.Product, error)

// Search calls f.
func (f SearcherFunc) Search(ctx context.Context, query, provider string, maxResults int) ([]shop.Product, error) {
	return f(ctx, query, provider, maxResults)
}

// Retrier runs a sequential retry search: each alternative of a query is
// tried in order against one provider until an attempt returns products.
// Retries are full round-trips, so worst-case latency is the number of
// alternatives times the per-search latency; callers needing parallel
// provider coverage use [Aggregator] instead.
type Retrier struct {
	searcher   Searcher
	maxResults int
}

// NewRetrier creates a Retrier that fetches at most maxResults products per
// attempt through s.
func NewRetrier(s Searcher, maxResults int) *Retrier {
	return &Retrier{searcher: s, maxResults: maxResults}
}

// Search tries every alternative of query against provider, stopping at the
// first attempt that yields a non-empty product list, and returns the
// products together with the term that found them.
//
// A failed attempt (Searcher error) is logged and skipped — one provider
// hiccup must not abort the whole retry sequence. When every alternative is
// exhausted, or ctx is cancelled between attempts, the result is an empty
// list paired with the original query.
func (r *Retrier) Search(ctx context.Context, query, provider string) ([]shop.Product, string) {
	alternatives := Alternatives(query)

	slog.Info("retry search starting",
		"query", query,
		"provider", provider,
		"alternatives", len(alternatives),
	)

	for attempt, term := range alternatives {
		if ctx.Err() != nil {
			slog.Warn("retry search cancelled", "query", query, "attempt", attempt+1)
			break
		}

		products, err := r.searcher.Search(ctx, term, provider, r.maxResults)
		if err != nil {
			slog.Warn("search attempt failed, trying next alternative",
				"term", term,
				"provider", provider,
				"attempt", attempt+1,
				"err", err,
			)
			continue
		}

		if len(products) > 0 {
			slog.Info("retry search succeeded",
				"term", term,
				"attempt", attempt+1,
				"products", len(products),
			)
			return products, term
		}

		slog.Debug("no results for term, trying next alternative", "term", term)
	}

	slog.Warn("all search attempts exhausted", "query", query, "provider", provider)
	return nil, query
}
