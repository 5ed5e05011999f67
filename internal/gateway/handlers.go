package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/bolke-ai/bolke/internal/browser"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/pkg/shop"
)

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	Query string `json:"query"`

	// Platforms optionally narrows the search. Empty uses the configured
	// platform list.
	Platforms []string `json:"platforms,omitempty"`

	// MaxResults optionally caps products per platform. Zero uses the
	// configured default; the configured value is also the ceiling.
	MaxResults int `json:"max_results,omitempty"`
}

// searchResponse is the JSON body returned from POST /api/search.
type searchResponse struct {
	Query            string                `json:"query"`
	Results          []shop.ProviderResult `json:"results"`
	CheapestProvider string                `json:"cheapest_provider"`
	CheapestProduct  *shop.Product         `json:"cheapest_product,omitempty"`
	PriceDifference  float64               `json:"price_difference"`
	Summary          string                `json:"summary"`
}

// handleSearch handles POST /api/search. Two or more platforms run the
// parallel comparison; a single platform runs the plain retry search.
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	cfg := g.settings()
	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = cfg.Platforms
	}
	for _, p := range platforms {
		if !slices.Contains(browser.Platforms(), p) {
			http.Error(w, "unknown platform: "+p, http.StatusBadRequest)
			return
		}
	}
	if req.MaxResults < 0 {
		http.Error(w, "max_results must not be negative", http.StatusBadRequest)
		return
	}
	maxResults := cfg.MaxResults
	if req.MaxResults > 0 && req.MaxResults < maxResults {
		maxResults = req.MaxResults
	}

	var result shop.ComparisonResult
	if len(platforms) >= 2 {
		sink := shop.SinkFunc(func(ev shop.ProgressEvent) {
			slog.Debug("search progress", "kind", ev.Kind, "message", ev.Message)
		})
		result = g.aggregator.Compare(r.Context(), req.Query, platforms, maxResults, sink)
	} else {
		retrier := search.NewRetrier(g.adapter, maxResults)
		products, term := retrier.Search(r.Context(), req.Query, platforms[0])
		slog.Debug("single platform search", "platform", platforms[0], "term", term)
		result = shop.ComparisonResult{
			Query:            req.Query,
			Results:          []shop.ProviderResult{{Provider: platforms[0], Products: products}},
			CheapestProvider: shop.CheapestUnknown,
		}
		if len(products) > 0 {
			result.CheapestProvider = platforms[0]
			cheapest := products[0]
			for _, p := range products[1:] {
				if p.Price < cheapest.Price {
					cheapest = p
				}
			}
			result.CheapestProduct = &cheapest
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:            result.Query,
		Results:          result.Results,
		CheapestProvider: result.CheapestProvider,
		CheapestProduct:  result.CheapestProduct,
		PriceDifference:  result.PriceDifference,
		Summary:          result.Summary,
	})
}

// checkoutRequest is the JSON body for POST /api/checkout.
type checkoutRequest struct {
	Items    []string `json:"items"`
	Provider string   `json:"provider"`
}

// handleCheckout handles POST /api/checkout.
func (g *Gateway) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "items are required", http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		req.Provider = browser.DefaultPlatform
	}
	if !slices.Contains(browser.Platforms(), req.Provider) {
		http.Error(w, "unknown platform: "+req.Provider, http.StatusBadRequest)
		return
	}

	conf, err := g.adapter.PlaceOrder(r.Context(), req.Items, req.Provider)
	if err != nil {
		slog.Error("checkout failed", "provider", req.Provider, "err", err)
		http.Error(w, "order placement failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, conf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
