// Package browser wraps the external page-automation capability behind the
// [search.Searcher] contract.
//
// The actual page driving (open site, type query, read product cards) is an
// opaque capability expressed by the [Navigator] interface — a black-box call
// with multi-second latency and occasional hard failure. This package owns
// everything around that call: launching and tearing down the Chrome process
// the navigator attaches to, building task descriptions, and filtering the
// structured output down to valid products.
package browser

import (
	"context"

	"github.com/bolke-ai/bolke/pkg/shop"
)

// Platform base URLs for the supported quick-commerce providers.
var platformURLs = map[string]string{
	"zepto":   "https://www.zeptonow.com",
	"blinkit": "https://blinkit.com",
}

// DefaultPlatform is used when an unknown provider id is requested.
const DefaultPlatform = "zepto"

// PlatformURL returns the base URL for provider, falling back to the default
// platform for unknown ids.
func PlatformURL(provider string) string {
	if url, ok := platformURLs[provider]; ok {
		return url
	}
	return platformURLs[DefaultPlatform]
}

// Platforms returns the supported provider ids in comparison launch order.
func Platforms() []string {
	return []string{"zepto", "blinkit"}
}

// SearchTask describes one product search for the navigator to perform.
type SearchTask struct {
	// CDPURL is the DevTools endpoint of the Chrome instance to attach to.
	CDPURL string

	// SearchURL is the platform search results page to open.
	SearchURL string

	// Provider is the platform id being searched.
	Provider string

	// Query is the product search term.
	Query string

	// MaxResults caps how many product cards to extract.
	MaxResults int
}

// OrderTask describes an automated checkout for the navigator to perform.
type OrderTask struct {
	// CDPURL is the DevTools endpoint of the Chrome instance to attach to.
	CDPURL string

	// BaseURL is the platform's home page.
	BaseURL string

	// Provider is the platform id to order from.
	Provider string

	// Items are the product names to add to the cart, in order.
	Items []string
}

// Navigator is the opaque page-automation agent. Implementations attach to
// the Chrome instance named in the task, drive the page, and return typed
// structured output. Calls are expected to take seconds and may fail hard;
// callers treat both as normal.
//
// Bolke never inspects how a Navigator works — DOM automation is explicitly
// outside this system.
type Navigator interface {
	// Search performs the product search described by task and returns the
	// extracted products. Finding nothing is a nil-slice, nil-error return.
	Search(ctx context.Context, task SearchTask) ([]shop.Product, error)

	// PlaceOrder drives the checkout flow described by task. The returned
	// confirmation is relayed to callers exactly as reported.
	PlaceOrder(ctx context.Context, task OrderTask) (shop.OrderConfirmation, error)
}
