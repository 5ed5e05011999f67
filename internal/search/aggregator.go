package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bolke-ai/bolke/internal/observe"
	"github.com/bolke-ai/bolke/pkg/shop"
)

// progressBuf is the buffer depth of the bounded progress pipe. When a
// caller-supplied sink is slower than event production, events beyond this
// depth are dropped rather than blocking a provider goroutine.
const progressBuf = 32

// Aggregator runs one search per provider concurrently and merges the
// results into a single ranked comparison. Provider-level failures degrade to
// empty result sets — Compare never fails as a whole.
type Aggregator struct {
	searcher Searcher
	metrics  *observe.Metrics
}

// NewAggregator creates an Aggregator over s. When metrics is nil the
// package-level default instruments are used.
func NewAggregator(s Searcher, metrics *observe.Metrics) *Aggregator {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Aggregator{searcher: s, metrics: metrics}
}

// Compare searches every provider in providers concurrently for query and
// returns the merged comparison. Each provider gets at most maxResults
// products. A provider whose search fails contributes an empty result set
// and never cancels its siblings; tasks always run to completion.
//
// Progress events are delivered to sink (which may be nil) through a bounded
// pipe: a slow sink causes events to be dropped, never a stalled search.
func (a *Aggregator) Compare(ctx context.Context, query string, providers []string, maxResults int, sink shop.ProgressSink) shop.ComparisonResult {
	start := time.Now()
	emit, finish := boundedSink(sink)
	defer finish()

	results := make([]shop.ProviderResult, len(providers))

	// Intentionally a plain errgroup with nil-returning tasks: a provider
	// failure is captured in its slot, not propagated, so siblings are never
	// cancelled (all-complete-or-isolated-failure semantics).
	var g errgroup.Group
	for i, provider := range providers {
		emit(shop.LogEvent("Searching %s for %q...", titleCase(provider), query))

		g.Go(func() error {
			products, err := a.searcher.Search(ctx, query, provider, maxResults)
			if err != nil {
				slog.Error("provider search failed, recording empty result",
					"provider", provider, "query", query, "err", err)
				a.metrics.RecordProviderError(ctx, provider)
				products = nil
			}
			for j := range products {
				products[j].Provider = provider
			}
			results[i] = shop.ProviderResult{Provider: provider, Products: products}
			return nil
		})
	}
	_ = g.Wait()

	cmp := merge(query, results)
	emit(shop.LogEvent("Comparison complete: cheapest is %s", titleCase(cmp.CheapestProvider)))

	a.metrics.ComparisonDuration.Record(ctx, time.Since(start).Seconds())
	slog.Info("comparison complete",
		"query", query,
		"cheapest_provider", cmp.CheapestProvider,
		"price_difference", cmp.PriceDifference,
		"duration", time.Since(start),
	)
	return cmp
}

// merge computes the cheapest product, winner, price delta, and summary from
// per-provider results. Results must be in launch order: price ties are
// broken in favour of the earlier provider (stable min).
func merge(query string, results []shop.ProviderResult) shop.ComparisonResult {
	cmp := shop.ComparisonResult{
		Query:            query,
		Results:          results,
		CheapestProvider: shop.CheapestUnknown,
	}

	// Global cheapest product, stable across providers and within a list.
	for i := range results {
		for j := range results[i].Products {
			p := &results[i].Products[j]
			if cmp.CheapestProduct == nil || p.Price < cmp.CheapestProduct.Price {
				cmp.CheapestProduct = p
			}
		}
	}

	// Winner: provider with the lowest non-zero minimum; earlier provider
	// wins ties. Delta is the gap to the best competing non-zero minimum, or
	// the winner's own minimum when it is the only provider with results.
	winnerMin, runnerUpMin := 0.0, 0.0
	for _, r := range results {
		min := r.MinPrice()
		if min == 0 {
			continue
		}
		switch {
		case cmp.CheapestProvider == shop.CheapestUnknown || min < winnerMin:
			if cmp.CheapestProvider != shop.CheapestUnknown {
				runnerUpMin = winnerMin
			}
			cmp.CheapestProvider = r.Provider
			winnerMin = min
		case runnerUpMin == 0 || min < runnerUpMin:
			runnerUpMin = min
		}
	}
	if cmp.CheapestProvider != shop.CheapestUnknown {
		cmp.PriceDifference = math.Abs(winnerMin - runnerUpMin)
	}

	cmp.Summary = buildSummary(query, results, cmp.CheapestProvider, cmp.PriceDifference)
	return cmp
}

// buildSummary renders the deterministic human-readable comparison report:
// one line per provider plus a trailing winner line when one exists.
func buildSummary(query string, results []shop.ProviderResult, winner string, diff float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:", query)
	for _, r := range results {
		if len(r.Products) > 0 {
			fmt.Fprintf(&b, "\n  %s: %d results, cheapest ₹%.0f",
				titleCase(r.Provider), len(r.Products), r.MinPrice())
		} else {
			fmt.Fprintf(&b, "\n  %s: No results found", titleCase(r.Provider))
		}
	}
	if winner != shop.CheapestUnknown {
		fmt.Fprintf(&b, "\n  → %s is cheaper by ₹%.0f", titleCase(winner), diff)
	}
	return b.String()
}

// boundedSink wraps sink behind a buffered channel drained by a single
// goroutine. emit never blocks: events beyond the buffer are counted and
// dropped. finish flushes remaining events, stops the drainer, and logs the
// drop count once if any events were lost.
func boundedSink(sink shop.ProgressSink) (emit func(shop.ProgressEvent), finish func()) {
	if sink == nil {
		return func(shop.ProgressEvent) {}, func() {}
	}

	pipe := make(chan shop.ProgressEvent, progressBuf)
	done := make(chan struct{})
	dropped := 0

	go func() {
		defer close(done)
		for ev := range pipe {
			sink.Emit(ev)
		}
	}()

	emit = func(ev shop.ProgressEvent) {
		select {
		case pipe <- ev:
		default:
			dropped++
		}
	}
	finish = func() {
		close(pipe)
		<-done
		if dropped > 0 {
			slog.Warn("progress events dropped by slow sink", "dropped", dropped)
		}
	}
	return emit, finish
}

// titleCase upper-cases the first letter of s ("zepto" → "Zepto").
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
