package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/bolke-ai/bolke/internal/observe"
	"github.com/bolke-ai/bolke/internal/resilience"
	"github.com/bolke-ai/bolke/pkg/shop"
)

// AdapterError marks an unrecoverable external failure (browser launch,
// navigation crash). "Nothing found" is never an AdapterError — that case is
// an empty product list with a nil error.
type AdapterError struct {
	Provider string
	Op       string
	Err      error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("browser: %s on %s: %v", e.Op, e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AdapterError) Unwrap() error { return e.Err }

// Launcher is the browser process lifecycle needed by the adapter. *Chrome
// is the production implementation; tests substitute fakes.
type Launcher interface {
	Launch(ctx context.Context) (*Instance, error)
	Teardown(inst *Instance)
}

// Adapter wraps a [Navigator] with a uniform search contract: one browser
// process per call (torn down in all paths), task construction per platform,
// validity filtering of the navigator's raw output, and a per-platform
// circuit breaker so a blocking storefront stops costing Chrome launches.
type Adapter struct {
	launcher  Launcher
	navigator Navigator
	metrics   *observe.Metrics
	breakers  *resilience.Registry
}

// NewAdapter creates an Adapter. When metrics is nil the package-level
// default instruments are used.
func NewAdapter(launcher Launcher, navigator Navigator, metrics *observe.Metrics) *Adapter {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Adapter{
		launcher:  launcher,
		navigator: navigator,
		metrics:   metrics,
		breakers:  resilience.NewRegistry(resilience.Config{}),
	}
}

// searchURL builds a platform search results URL for query.
func searchURL(provider, query string) string {
	return fmt.Sprintf("%s/s/?q=%s", PlatformURL(provider), strings.ReplaceAll(query, " ", "+"))
}

// Search implements search.Searcher. It launches a browser, runs the
// navigator against the provider's search page, and returns only products
// passing the validity rules (positive price, plausible name). Invalid
// products are counted and logged, never surfaced. The browser is torn down
// whether the navigation succeeds, fails, or panics.
func (a *Adapter) Search(ctx context.Context, query, provider string, maxResults int) (_ []shop.Product, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		a.metrics.SearchDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", provider)))
		a.metrics.RecordProviderSearch(ctx, provider, status)
	}()

	var raw []shop.Product
	err = a.breakers.For(provider).Execute(func() error {
		inst, err := a.launcher.Launch(ctx)
		if err != nil {
			return &AdapterError{Provider: provider, Op: "launch browser", Err: err}
		}
		defer a.launcher.Teardown(inst)

		task := SearchTask{
			CDPURL:     inst.CDPURL(),
			SearchURL:  searchURL(provider, query),
			Provider:   provider,
			Query:      query,
			MaxResults: maxResults,
		}

		slog.Info("searching platform", "provider", provider, "query", query, "url", task.SearchURL)

		raw, err = a.navigator.Search(ctx, task)
		if err != nil {
			return &AdapterError{Provider: provider, Op: "navigate", Err: err}
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &AdapterError{Provider: provider, Op: "search", Err: err}
	}
	if err != nil {
		return nil, err
	}

	valid := raw[:0:0]
	dropped := 0
	for _, p := range raw {
		if !p.Valid() {
			dropped++
			continue
		}
		valid = append(valid, p)
	}
	if dropped > 0 {
		slog.Warn("dropped invalid products from navigator output",
			"provider", provider, "query", query, "dropped", dropped)
	}

	slog.Info("platform search complete",
		"provider", provider, "query", query, "products", len(valid))
	return valid, nil
}

// PlaceOrder drives a fully automated checkout for items on provider. The
// confirmation is returned exactly as the navigator reported it; Bolke adds
// no transactional guarantee of its own. The browser is torn down in all
// paths.
func (a *Adapter) PlaceOrder(ctx context.Context, items []string, provider string) (shop.OrderConfirmation, error) {
	inst, err := a.launcher.Launch(ctx)
	if err != nil {
		return shop.OrderConfirmation{}, &AdapterError{Provider: provider, Op: "launch browser", Err: err}
	}
	defer a.launcher.Teardown(inst)

	task := OrderTask{
		CDPURL:   inst.CDPURL(),
		BaseURL:  PlatformURL(provider),
		Provider: provider,
		Items:    items,
	}

	slog.Info("placing automated order", "provider", provider, "items", len(items))

	conf, err := a.navigator.PlaceOrder(ctx, task)
	if err != nil {
		return shop.OrderConfirmation{}, &AdapterError{Provider: provider, Op: "place order", Err: err}
	}

	if conf.Success {
		slog.Info("order placed", "provider", provider, "order_id", conf.OrderID,
			"total", conf.TotalAmount, "eta", conf.EstimatedDelivery)
	} else {
		slog.Warn("order not placed", "provider", provider, "message", conf.Message)
	}
	return conf, nil
}
