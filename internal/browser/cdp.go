package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/bolke-ai/bolke/pkg/shop"
)

const (
	// settleDelay is how long a storefront page gets to hydrate its product
	// grid after the document reports ready. The grids are client-rendered;
	// extracting earlier returns an empty page.
	settleDelay = 3 * time.Second

	// readyTimeout bounds waiting for document.readyState.
	readyTimeout = 15 * time.Second

	// cdpReadLimit is the maximum CDP message size accepted. Evaluate results
	// carrying a serialized product grid stay well under this.
	cdpReadLimit = 4 << 20
)

// CDPNavigator drives a Chrome instance over the DevTools protocol. It
// implements [Navigator] by opening one tab per task, waiting for the page to
// hydrate, and running extraction or cart scripts in the page.
type CDPNavigator struct {
	httpc *http.Client
}

// NewCDPNavigator creates a navigator for CDP endpoints.
func NewCDPNavigator() *CDPNavigator {
	return &CDPNavigator{httpc: &http.Client{Timeout: 10 * time.Second}}
}

// Search opens the task's search URL and extracts the product grid.
func (n *CDPNavigator) Search(ctx context.Context, task SearchTask) ([]shop.Product, error) {
	client, err := n.dial(ctx, task.CDPURL)
	if err != nil {
		return nil, err
	}
	defer client.close()

	tab, err := client.openTab(ctx, task.SearchURL)
	if err != nil {
		return nil, err
	}
	defer tab.close(ctx)

	if err := tab.waitReady(ctx); err != nil {
		return nil, err
	}

	var raw string
	if err := tab.evaluate(ctx, extractScript(task.Provider), &raw); err != nil {
		return nil, fmt.Errorf("extract products: %w", err)
	}

	var dtos []productDTO
	if err := json.Unmarshal([]byte(raw), &dtos); err != nil {
		return nil, fmt.Errorf("parse product grid: %w", err)
	}

	products := make([]shop.Product, 0, len(dtos))
	for _, d := range dtos {
		products = append(products, shop.Product{
			Name:     d.Name,
			Price:    d.Price,
			Brand:    d.Brand,
			Weight:   d.Weight,
			ImageURL: d.ImageURL,
		})
		if task.MaxResults > 0 && len(products) >= task.MaxResults {
			break
		}
	}
	return products, nil
}

// PlaceOrder adds each item to the cart and attempts the checkout flow. It
// only works against a logged-in Chrome profile with a saved address;
// otherwise it returns an unsuccessful confirmation explaining why.
func (n *CDPNavigator) PlaceOrder(ctx context.Context, task OrderTask) (shop.OrderConfirmation, error) {
	client, err := n.dial(ctx, task.CDPURL)
	if err != nil {
		return shop.OrderConfirmation{}, err
	}
	defer client.close()

	added := 0
	for _, item := range task.Items {
		ok, err := n.addToCart(ctx, client, task, item)
		if err != nil {
			return shop.OrderConfirmation{}, err
		}
		if ok {
			added++
		} else {
			slog.Warn("item could not be added to cart", "provider", task.Provider, "item", item)
		}
	}

	if added == 0 {
		return shop.OrderConfirmation{
			Success: false,
			Message: "No items could be added to the cart. Make sure you are logged in with a saved delivery address.",
		}, nil
	}

	conf, err := n.checkout(ctx, client, task)
	if err != nil {
		return shop.OrderConfirmation{}, err
	}
	if added < len(task.Items) {
		conf.Message = strings.TrimSpace(conf.Message + fmt.Sprintf(
			" %d of %d items were out of stock or not found.", len(task.Items)-added, len(task.Items)))
	}
	return conf, nil
}

// addToCart opens the item's search page and clicks the first ADD button.
func (n *CDPNavigator) addToCart(ctx context.Context, client *cdpClient, task OrderTask, item string) (bool, error) {
	url := task.BaseURL + "/s/?q=" + strings.ReplaceAll(strings.TrimSpace(item), " ", "+")
	tab, err := client.openTab(ctx, url)
	if err != nil {
		return false, err
	}
	defer tab.close(ctx)

	if err := tab.waitReady(ctx); err != nil {
		return false, err
	}

	var result string
	if err := tab.evaluate(ctx, addToCartScript, &result); err != nil {
		return false, fmt.Errorf("add to cart: %w", err)
	}
	// Cart drawers animate; give the click a moment before the tab closes.
	sleepCtx(ctx, time.Second)
	return result == "added", nil
}

// checkout opens the cart, walks the checkout flow with cash-on-delivery,
// and scrapes the confirmation page.
func (n *CDPNavigator) checkout(ctx context.Context, client *cdpClient, task OrderTask) (shop.OrderConfirmation, error) {
	tab, err := client.openTab(ctx, task.BaseURL)
	if err != nil {
		return shop.OrderConfirmation{}, err
	}
	defer tab.close(ctx)

	if err := tab.waitReady(ctx); err != nil {
		return shop.OrderConfirmation{}, err
	}

	// Cart → checkout → COD → place order, one click per step with a pause
	// for the next panel to render.
	for _, script := range checkoutSteps {
		var clicked string
		if err := tab.evaluate(ctx, script, &clicked); err != nil {
			return shop.OrderConfirmation{}, fmt.Errorf("checkout step: %w", err)
		}
		sleepCtx(ctx, 2*time.Second)
	}

	var raw string
	if err := tab.evaluate(ctx, confirmationScript, &raw); err != nil {
		return shop.OrderConfirmation{}, fmt.Errorf("read confirmation: %w", err)
	}

	var dto struct {
		Confirmed bool    `json:"confirmed"`
		OrderID   string  `json:"order_id"`
		Total     float64 `json:"total"`
		Delivery  string  `json:"delivery"`
	}
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return shop.OrderConfirmation{}, fmt.Errorf("parse confirmation: %w", err)
	}

	if !dto.Confirmed {
		return shop.OrderConfirmation{
			Success: false,
			Message: "Order flow did not reach a confirmation page. The cart is populated; complete checkout in the app.",
		}, nil
	}
	return shop.OrderConfirmation{
		Success:           true,
		OrderID:           dto.OrderID,
		TotalAmount:       dto.Total,
		EstimatedDelivery: dto.Delivery,
		Message:           "Order placed with cash on delivery.",
	}, nil
}

// productDTO is the JSON shape produced by the in-page extraction script.
type productDTO struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Brand    string  `json:"brand"`
	Weight   string  `json:"weight"`
	ImageURL string  `json:"image_url"`
}

// ── DevTools protocol client ─────────────────────────────────────────────────

// cdpClient is a minimal synchronous DevTools protocol client. Commands are
// issued one at a time; events arriving between a command and its response
// are discarded.
type cdpClient struct {
	conn   *websocket.Conn
	nextID int
}

// dial resolves the browser-level WebSocket endpoint via /json/version and
// connects to it.
func (n *CDPNavigator) dial(ctx context.Context, cdpURL string) (*cdpClient, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cdpURL+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query devtools endpoint: %w", err)
	}
	defer resp.Body.Close()

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return nil, fmt.Errorf("parse devtools version: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("devtools endpoint %s exposes no browser target", cdpURL)
	}

	conn, _, err := websocket.Dial(ctx, version.WebSocketDebuggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial devtools websocket: %w", err)
	}
	conn.SetReadLimit(cdpReadLimit)
	return &cdpClient{conn: conn}, nil
}

func (c *cdpClient) close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call sends one command and blocks until its response arrives. sessionID
// scopes the command to an attached tab; empty targets the browser.
func (c *cdpClient) call(ctx context.Context, sessionID, method string, params any, out any) error {
	c.nextID++
	id := c.nextID

	req := struct {
		ID        int    `json:"id"`
		Method    string `json:"method"`
		Params    any    `json:"params,omitempty"`
		SessionID string `json:"sessionId,omitempty"`
	}{ID: id, Method: method, Params: params, SessionID: sessionID}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("cdp %s: %w", method, err)
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("cdp %s: %w", method, err)
		}
		var msg struct {
			ID     int             `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *cdpError       `json:"error"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("cdp %s: %w", method, err)
		}
		if msg.ID != id {
			continue // event or stale response
		}
		if msg.Error != nil {
			return fmt.Errorf("cdp %s: %s (code %d)", method, msg.Error.Message, msg.Error.Code)
		}
		if out != nil && len(msg.Result) > 0 {
			return json.Unmarshal(msg.Result, out)
		}
		return nil
	}
}

// tab is one attached page target.
type tab struct {
	client    *cdpClient
	targetID  string
	sessionID string
}

// openTab creates a page target at url and attaches to it.
func (c *cdpClient) openTab(ctx context.Context, url string) (*tab, error) {
	var created struct {
		TargetID string `json:"targetId"`
	}
	err := c.call(ctx, "", "Target.createTarget", map[string]any{"url": url}, &created)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	err = c.call(ctx, "", "Target.attachToTarget",
		map[string]any{"targetId": created.TargetID, "flatten": true}, &attached)
	if err != nil {
		return nil, fmt.Errorf("attach to tab: %w", err)
	}

	return &tab{client: c, targetID: created.TargetID, sessionID: attached.SessionID}, nil
}

func (t *tab) close(ctx context.Context) {
	_ = t.client.call(ctx, "", "Target.closeTarget", map[string]any{"targetId": t.targetID}, nil)
}

// waitReady polls document.readyState, then pauses for client-side hydration.
func (t *tab) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		var state string
		if err := t.evaluate(ctx, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page did not finish loading within %s", readyTimeout)
		}
		sleepCtx(ctx, 250*time.Millisecond)
	}
	sleepCtx(ctx, settleDelay)
	return ctx.Err()
}

// evaluate runs a JS expression in the tab and decodes its by-value result.
func (t *tab) evaluate(ctx context.Context, expression string, out any) error {
	var resp struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	err := t.client.call(ctx, t.sessionID, "Runtime.evaluate",
		map[string]any{"expression": expression, "returnByValue": true}, &resp)
	if err != nil {
		return err
	}
	if resp.ExceptionDetails != nil {
		return fmt.Errorf("page script failed: %s", resp.ExceptionDetails.Text)
	}
	if out != nil && len(resp.Result.Value) > 0 {
		return json.Unmarshal(resp.Result.Value, out)
	}
	return nil
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ── In-page scripts ──────────────────────────────────────────────────────────

// extractScript builds the product-grid extraction script. Product cards on
// both storefronts are anchor elements whose href contains the platform's
// product path segment; everything else is read heuristically from the card
// text (₹ price line, quantity line).
func extractScript(provider string) string {
	selector := `a[href*="/pn/"], a[href*="/prn/"]`
	switch provider {
	case "zepto":
		selector = `a[href*="/pn/"]`
	case "blinkit":
		selector = `a[href*="/prn/"]`
	}
	return `(() => {
	const out = [];
	const seen = new Set();
	const priceRe = /₹\s*([0-9][0-9,]*(?:\.[0-9]+)?)/;
	const qtyRe = /^[0-9].{0,20}(g|gm|kg|ml|l|ltr|pc|pcs|pack|pieces)\b/i;
	for (const card of document.querySelectorAll('` + selector + `')) {
		const text = card.innerText || '';
		const m = text.match(priceRe);
		if (!m) continue;
		const lines = text.split('\n').map(s => s.trim()).filter(Boolean);
		const name = lines.find(l => l.length >= 3 && !l.includes('₹') && !qtyRe.test(l) && !/^add$/i.test(l)) || '';
		if (!name || seen.has(name)) continue;
		seen.add(name);
		const weight = lines.find(l => qtyRe.test(l)) || '';
		const img = card.querySelector('img');
		out.push({
			name: name,
			price: parseFloat(m[1].replace(/,/g, '')),
			brand: name.split(' ')[0],
			weight: weight,
			image_url: img ? img.src : '',
		});
	}
	return JSON.stringify(out);
})()`
}

// addToCartScript clicks the first visible ADD button on a search page.
const addToCartScript = `(() => {
	const controls = Array.from(document.querySelectorAll('button, div[role="button"]'));
	const add = controls.find(el => /^\s*add\s*$/i.test(el.innerText || '') && el.offsetParent !== null);
	if (!add) return 'not_found';
	add.click();
	return 'added';
})()`

// checkoutSteps click through cart → checkout → cash on delivery → place
// order. Each step is tolerant of the control being absent (earlier step may
// have landed on a combined panel).
var checkoutSteps = []string{
	clickByText(`cart`),
	clickByText(`proceed|checkout`),
	clickByText(`deliver here|confirm address`),
	clickByText(`cash on delivery|cod|pay on delivery`),
	clickByText(`place order|confirm order|pay now`),
}

// clickByText returns a script clicking the first visible control whose text
// matches the pattern.
func clickByText(pattern string) string {
	return `(() => {
	const re = new RegExp('` + pattern + `', 'i');
	const controls = Array.from(document.querySelectorAll('button, a, div[role="button"]'));
	const el = controls.find(c => re.test((c.innerText || '').trim()) && c.offsetParent !== null);
	if (!el) return 'not_found';
	el.click();
	return 'clicked';
})()`
}

// confirmationScript scrapes the order confirmation page.
const confirmationScript = `(() => {
	const body = document.body.innerText || '';
	const confirmed = /order placed|order confirmed|arriving in/i.test(body);
	const idMatch = body.match(/order\s*(?:id|no|number)?[:#\s]*([A-Z0-9-]{6,})/i);
	const totalMatch = body.match(/(?:total|paid|payable)[^₹]*₹\s*([0-9][0-9,]*(?:\.[0-9]+)?)/i);
	const etaMatch = body.match(/arriving in [^\n]+|delivery in [^\n]+|[0-9]+\s*(?:-\s*[0-9]+\s*)?min(?:ute)?s?/i);
	return JSON.stringify({
		confirmed: confirmed,
		order_id: idMatch ? idMatch[1] : '',
		total: totalMatch ? parseFloat(totalMatch[1].replace(/,/g, '')) : 0,
		delivery: etaMatch ? etaMatch[0] : '',
	});
})()`
