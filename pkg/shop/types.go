// Package shop defines the shared domain types for product search and price
// comparison across quick-commerce platforms.
//
// The types here cross several subsystem boundaries (browser adapter, retry
// search, aggregator, gateway responses), so they live under pkg/ rather than
// inside any one internal package.
package shop

import (
	"fmt"
	"strings"
)

// MinNameLength is the shortest product name accepted at the adapter boundary.
const MinNameLength = 3

// Product is a single product scraped from a platform's search results.
type Product struct {
	// Name is the full product name including brand and pack size.
	Name string `json:"name"`

	// Price is the listed price in INR.
	Price float64 `json:"price"`

	// Brand is the brand name if identifiable, otherwise empty.
	Brand string `json:"brand,omitempty"`

	// Weight is the pack size as shown (e.g. "1 kg", "500 g", "1 ltr").
	Weight string `json:"weight,omitempty"`

	// ImageURL is the product image URL if one was visible.
	ImageURL string `json:"image_url,omitempty"`

	// Provider is the platform this product was found on. Set by the
	// aggregator when merging results; empty on raw adapter output.
	Provider string `json:"provider,omitempty"`
}

// Valid reports whether p passes the adapter-boundary validity rules: a price
// greater than zero and a name of at least MinNameLength characters. Products
// failing these checks are scraper artefacts and are dropped before they
// reach any caller.
func (p Product) Valid() bool {
	return p.Price > 0 && len(strings.TrimSpace(p.Name)) >= MinNameLength
}

// ProviderResult holds the surviving products from one platform.
type ProviderResult struct {
	Provider string    `json:"provider"`
	Products []Product `json:"products"`
}

// MinPrice returns the lowest price in r, or 0 if r holds no products.
func (r ProviderResult) MinPrice() float64 {
	min := 0.0
	for _, p := range r.Products {
		if min == 0 || p.Price < min {
			min = p.Price
		}
	}
	return min
}

// CheapestUnknown is the winner value of a comparison in which no provider
// returned any valid product.
const CheapestUnknown = "unknown"

// ComparisonResult is the merged outcome of a multi-provider search. It is
// built once per comparison and never mutated afterwards.
type ComparisonResult struct {
	// Query is the search term the comparison was run for.
	Query string `json:"query"`

	// Results holds one entry per provider, in launch order. A provider that
	// failed or found nothing contributes an entry with an empty product list.
	Results []ProviderResult `json:"results"`

	// CheapestProvider is the provider with the lowest non-zero minimum
	// price, or CheapestUnknown when no provider returned valid products.
	CheapestProvider string `json:"cheapest_provider"`

	// CheapestProduct points at the globally cheapest product across all
	// providers, or nil when the comparison is empty. Price ties are broken
	// by launch order: the earlier provider wins.
	CheapestProduct *Product `json:"cheapest_product,omitempty"`

	// PriceDifference is the absolute difference between the per-provider
	// minimum prices. Always >= 0; 0 when the winner is unknown.
	PriceDifference float64 `json:"price_difference"`

	// Summary is a deterministic human-readable report of the comparison.
	Summary string `json:"summary"`
}

// ProgressEvent is an append-only telemetry record emitted while a
// comparison runs. Events are delivered to a caller-supplied sink and are
// never persisted.
type ProgressEvent struct {
	// Kind is the event category. Currently always "log".
	Kind string `json:"kind"`

	// Message is the human-readable progress line.
	Message string `json:"message"`
}

// LogEvent builds a "log" progress event with a formatted message.
func LogEvent(format string, args ...any) ProgressEvent {
	return ProgressEvent{Kind: "log", Message: fmt.Sprintf(format, args...)}
}

// ProgressSink receives progress events. Implementations may drop events but
// must never block the caller indefinitely.
type ProgressSink interface {
	Emit(ev ProgressEvent)
}

// SinkFunc adapts a function to the ProgressSink interface.
type SinkFunc func(ev ProgressEvent)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev ProgressEvent) { f(ev) }

// OrderConfirmation is the outcome of an automated checkout, relayed exactly
// as the page-automation agent reported it. Bolke makes no transactional
// guarantee beyond this report.
type OrderConfirmation struct {
	Success           bool    `json:"success"`
	OrderID           string  `json:"order_id,omitempty"`
	EstimatedDelivery string  `json:"estimated_delivery,omitempty"`
	TotalAmount       float64 `json:"total_amount,omitempty"`
	TrackingURL       string  `json:"tracking_url,omitempty"`
	Message           string  `json:"message,omitempty"`
}
