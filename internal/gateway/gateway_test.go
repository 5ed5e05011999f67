package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/bolke-ai/bolke/internal/browser"
	"github.com/bolke-ai/bolke/internal/config"
	"github.com/bolke-ai/bolke/internal/gateway"
	"github.com/bolke-ai/bolke/internal/history"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/internal/session"
	"github.com/bolke-ai/bolke/pkg/provider/live"
	"github.com/bolke-ai/bolke/pkg/provider/live/mock"
	"github.com/bolke-ai/bolke/pkg/shop"
)

// stubLauncher satisfies browser.Launcher without a real process.
type stubLauncher struct{}

func (stubLauncher) Launch(context.Context) (*browser.Instance, error) { return &browser.Instance{}, nil }
func (stubLauncher) Teardown(*browser.Instance)                        {}

// stubNavigator returns scripted products keyed by provider and records the
// tasks it was handed.
type stubNavigator struct {
	products map[string][]shop.Product
	order    shop.OrderConfirmation

	mu    sync.Mutex
	tasks []browser.SearchTask
}

func (s *stubNavigator) Search(_ context.Context, task browser.SearchTask) ([]shop.Product, error) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return s.products[task.Provider], nil
}

func (s *stubNavigator) tasksSnapshot() []browser.SearchTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.SearchTask(nil), s.tasks...)
}

func (s *stubNavigator) PlaceOrder(context.Context, browser.OrderTask) (shop.OrderConfirmation, error) {
	return s.order, nil
}

// newTestGateway wires a gateway over stubbed search and a mock live session.
func newTestGateway(nav *stubNavigator, handle *mock.Session) *gateway.Gateway {
	adapter := browser.NewAdapter(stubLauncher{}, nav, nil)
	sessions := session.NewManager(session.ManagerConfig{
		Provider: &mock.Provider{Session: handle},
		Retrier:  search.NewRetrier(adapter, 5),
		Platform: "zepto",
		History:  history.NewMemStore(10),
	})
	return gateway.New(gateway.Config{
		Sessions:   sessions,
		Aggregator: search.NewAggregator(adapter, nil),
		Adapter:    adapter,
		Settings: func() config.SearchConfig {
			return config.SearchConfig{Platforms: []string{"zepto", "blinkit"}, MaxResults: 5}
		},
	})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data)))
	return rec
}

// ─── TestSearch_ComparesPlatforms ────────────────────────────────────────────

func TestSearch_ComparesPlatforms(t *testing.T) {
	t.Parallel()

	nav := &stubNavigator{products: map[string][]shop.Product{
		"zepto":   {{Name: "Maggi 70g", Price: 14}},
		"blinkit": {{Name: "Maggi 70g", Price: 16}},
	}}
	h := newTestGateway(nav, mock.NewSession()).Handler()

	rec := postJSON(t, h, "/api/search", map[string]any{"query": "maggi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		CheapestProvider string                `json:"cheapest_provider"`
		Results          []shop.ProviderResult `json:"results"`
		Summary          string                `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CheapestProvider != "zepto" {
		t.Errorf("cheapest_provider = %q, want zepto", resp.CheapestProvider)
	}
	if len(resp.Results) != 2 {
		t.Errorf("want 2 provider results, got %d", len(resp.Results))
	}
	if !strings.Contains(resp.Summary, "Zepto is cheaper") {
		t.Errorf("summary missing winner line: %s", resp.Summary)
	}
}

// ─── TestSearch_SinglePlatformUsesRetrier ────────────────────────────────────

func TestSearch_SinglePlatformUsesRetrier(t *testing.T) {
	t.Parallel()

	nav := &stubNavigator{products: map[string][]shop.Product{
		"blinkit": {{Name: "Amul Milk 1L", Price: 66}},
	}}
	h := newTestGateway(nav, mock.NewSession()).Handler()

	rec := postJSON(t, h, "/api/search", map[string]any{
		"query": "milk", "platforms": []string{"blinkit"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		CheapestProvider string        `json:"cheapest_provider"`
		CheapestProduct  *shop.Product `json:"cheapest_product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CheapestProvider != "blinkit" || resp.CheapestProduct == nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

// ─── TestSearch_BadRequests ──────────────────────────────────────────────────

func TestSearch_BadRequests(t *testing.T) {
	t.Parallel()

	h := newTestGateway(&stubNavigator{}, mock.NewSession()).Handler()

	if rec := postJSON(t, h, "/api/search", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing query: status = %d, want 400", rec.Code)
	}
	if rec := postJSON(t, h, "/api/search", map[string]any{
		"query": "milk", "platforms": []string{"amazon"},
	}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown platform: status = %d, want 400", rec.Code)
	}
}

// ─── TestSearch_MaxResultsOverride ───────────────────────────────────────────

func TestSearch_MaxResultsOverride(t *testing.T) {
	t.Parallel()

	nav := &stubNavigator{products: map[string][]shop.Product{
		"zepto": {{Name: "Maggi 70g", Price: 14}},
	}}
	h := newTestGateway(nav, mock.NewSession()).Handler()

	rec := postJSON(t, h, "/api/search", map[string]any{
		"query": "maggi", "platforms": []string{"zepto"}, "max_results": 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	tasks := nav.tasksSnapshot()
	if len(tasks) == 0 {
		t.Fatal("navigator never invoked")
	}
	for _, task := range tasks {
		if task.MaxResults != 1 {
			t.Errorf("task max results = %d, want 1", task.MaxResults)
		}
	}
}

// ─── TestSearch_MaxResultsClampedToConfig ────────────────────────────────────

func TestSearch_MaxResultsClampedToConfig(t *testing.T) {
	t.Parallel()

	nav := &stubNavigator{products: map[string][]shop.Product{
		"zepto":   {{Name: "Maggi 70g", Price: 14}},
		"blinkit": {{Name: "Maggi 70g", Price: 16}},
	}}
	h := newTestGateway(nav, mock.NewSession()).Handler()

	rec := postJSON(t, h, "/api/search", map[string]any{
		"query": "maggi", "max_results": 50,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	tasks := nav.tasksSnapshot()
	if len(tasks) == 0 {
		t.Fatal("navigator never invoked")
	}
	for _, task := range tasks {
		if task.MaxResults != 5 {
			t.Errorf("task max results = %d, want config ceiling 5", task.MaxResults)
		}
	}

	if rec := postJSON(t, h, "/api/search", map[string]any{
		"query": "maggi", "max_results": -1,
	}); rec.Code != http.StatusBadRequest {
		t.Errorf("negative max_results: status = %d, want 400", rec.Code)
	}
}

// ─── TestCheckout ────────────────────────────────────────────────────────────

func TestCheckout(t *testing.T) {
	t.Parallel()

	nav := &stubNavigator{order: shop.OrderConfirmation{
		Success: true, OrderID: "BLK-12345", EstimatedDelivery: "12 minutes", TotalAmount: 132,
	}}
	h := newTestGateway(nav, mock.NewSession()).Handler()

	rec := postJSON(t, h, "/api/checkout", map[string]any{
		"items": []string{"Amul Milk 1L", "Maggi 70g"}, "provider": "blinkit",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var conf shop.OrderConfirmation
	if err := json.Unmarshal(rec.Body.Bytes(), &conf); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !conf.Success || conf.OrderID != "BLK-12345" {
		t.Errorf("unexpected confirmation: %+v", conf)
	}

	if rec := postJSON(t, h, "/api/checkout", map[string]any{"items": []string{}}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty items: status = %d, want 400", rec.Code)
	}
}

// ─── TestHealthEndpoints ─────────────────────────────────────────────────────

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	h := newTestGateway(&stubNavigator{}, mock.NewSession()).Handler()

	for _, path := range []string{"/api/health", "/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

// ─── TestAudioWebSocket_RoundTrip ────────────────────────────────────────────

func TestAudioWebSocket_RoundTrip(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	gw := newTestGateway(&stubNavigator{}, handle)

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audio?session=rt-1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Client microphone chunk reaches the model connection.
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(handle.SentAudioSnapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client audio never reached the live session")
		}
		time.Sleep(time.Millisecond)
	}

	// Model speech reaches the client as a binary message.
	handle.EventsCh <- live.ServerEvent{Audio: [][]byte{{0xAB, 0xCD}}}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary || !bytes.Equal(data, []byte{0xAB, 0xCD}) {
		t.Fatalf("got (%v, %v), want binary audio frame", typ, data)
	}

	close(handle.EventsCh)
}
