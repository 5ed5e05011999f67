// Package session implements the duplex audio session: one live model
// connection multiplexing inbound and outbound audio with structured tool
// invocations spliced into the conversation.
//
// A Session owns two ordered channels (inbound messages from the client,
// outbound frames to the client) and a connection to the live voice model.
// While streaming it runs exactly two duties: ingress (client audio → model)
// and egress (model events → client audio / tool dispatch). Tool calls are
// executed serially, in arrival order, inside the egress duty — search
// failures become error tool results and never terminate the audio duties.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bolke-ai/bolke/internal/history"
	"github.com/bolke-ai/bolke/internal/observe"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/pkg/audio"
	"github.com/bolke-ai/bolke/pkg/provider/live"
)

// State is the lifecycle phase of a Session.
type State int32

const (
	// StateConnecting means the live model connection is being established.
	StateConnecting State = iota

	// StateStreaming means both duties are live and audio is flowing.
	StateStreaming

	// StateClosed means the session ended cleanly (connection closed or
	// cancellation). Terminal.
	StateClosed

	// StateFailed means a duty or the connection failed. Terminal.
	StateFailed
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

const (
	// SearchTool is the single function offered to the model.
	SearchTool = "search_product"

	// channelBuf is the buffer depth of the inbound and outbound channels.
	// Deep enough that neither side stalls during normal turn-taking; a full
	// inbound channel applies backpressure to the transport reader.
	channelBuf = 256
)

// systemInstruction pins the model to tool-grounded answers: it must never
// invent prices or availability.
const systemInstruction = `You are Bolke — a friendly Hinglish-speaking kirana shop assistant.

CRITICAL RULE: When the user asks for ANY product, you MUST call the search_product tool IMMEDIATELY.
Do NOT speak about prices or availability until you have called the tool and received results.

After you get search results back:
- Tell the user the product names and prices in friendly Hinglish
- Mention the cheapest option
- Ask if they want to add it to cart

If no results found:
- Tell the user it's not available right now
- Suggest they try a different name or similar product

NEVER make up prices. NEVER guess availability. ALWAYS use the tool first.`

// toolDefinitions is the fixed tool schema registered at connect time.
var toolDefinitions = []live.ToolDefinition{
	{
		Name: SearchTool,
		Description: "Search for a grocery product. Call this IMMEDIATELY when the " +
			"user asks for any product. Returns real-time prices and availability.",
		Parameters: map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "STRING",
					"description": "Product name to search for, e.g. 'Maggi', 'toned milk 1 liter', 'atta 5kg'",
				},
			},
			"required": []string{"query"},
		},
	},
}

// errStreamEnded signals a clean end of the model event stream. It is
// internal plumbing: Run maps it to StateClosed and a nil error.
var errStreamEnded = errors.New("session: model event stream ended")

// Config holds the dependencies of a Session.
type Config struct {
	// ID is the session identifier (partition key for history).
	ID string

	// Provider opens the live model connection.
	Provider live.Provider

	// Retrier executes tool-triggered product searches.
	Retrier *search.Retrier

	// Platform is the single provider id searched on behalf of tool calls.
	Platform string

	// History records conversation turns; evicted on teardown. May be nil.
	History history.Store

	// Voice selects the model's speech voice. Empty uses the provider default.
	Voice string

	// Metrics records session telemetry. Nil uses the package default.
	Metrics *observe.Metrics
}

// Session is one duplex audio session. Create with New, drive with Run; the
// inbound channel accepts client audio and the outbound channel yields model
// speech until the session reaches a terminal state.
type Session struct {
	id       string
	provider live.Provider
	retrier  *search.Retrier
	platform string
	hist     history.Store
	voice    string
	metrics  *observe.Metrics

	in    chan audio.Message
	out   chan audio.Frame
	state atomic.Int32
}

// New creates an idle Session in StateConnecting. Run must be called to
// start it.
func New(cfg Config) *Session {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	s := &Session{
		id:       cfg.ID,
		provider: cfg.Provider,
		retrier:  cfg.Retrier,
		platform: cfg.Platform,
		hist:     cfg.History,
		voice:    cfg.Voice,
		metrics:  m,
		in:       make(chan audio.Message, channelBuf),
		out:      make(chan audio.Frame, channelBuf),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// In returns the inbound channel. Send FrameMessages for client audio and a
// single EndOfStreamMessage when the client stops sending.
func (s *Session) In() chan<- audio.Message { return s.in }

// Out returns the outbound channel carrying the model's speech. It is closed
// when the session reaches a terminal state.
func (s *Session) Out() <-chan audio.Frame { return s.out }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Run connects to the live model and streams until the connection closes,
// the inbound sentinel arrives, ctx is cancelled, or a duty fails. It always
// closes the outbound channel and evicts the session's history before
// returning. The returned error is nil for a clean close (StateClosed) and
// non-nil for StateFailed.
func (s *Session) Run(ctx context.Context) error {
	log := slog.With("session_id", s.id)
	log.Info("session connecting")

	handle, err := s.provider.Connect(ctx, live.SessionConfig{
		Instructions: systemInstruction,
		Voice:        s.voice,
		Tools:        toolDefinitions,
	})
	if err != nil {
		s.state.Store(int32(StateFailed))
		close(s.out)
		s.evictHistory()
		return fmt.Errorf("session: connect: %w", err)
	}

	s.state.Store(int32(StateStreaming))
	log.Info("session streaming")

	// Fail-fast: either duty's error cancels the other through the group
	// context. Ingress finishing on the sentinel returns nil and leaves
	// egress running.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ingress(gctx, handle) })
	g.Go(func() error { return s.egress(gctx, handle) })
	err = g.Wait()

	_ = handle.Close()
	close(s.out)
	s.evictHistory()

	switch {
	case err == nil, errors.Is(err, errStreamEnded), errors.Is(err, context.Canceled):
		s.state.Store(int32(StateClosed))
		log.Info("session closed")
		return nil
	default:
		s.state.Store(int32(StateFailed))
		log.Error("session failed", "err", err)
		return err
	}
}

// ingress pulls messages off the inbound channel and forwards frames to the
// model. The end-of-stream sentinel terminates this duty only.
func (s *Session) ingress(ctx context.Context, handle live.SessionHandle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.in:
			if msg.EndOfStream {
				slog.Debug("inbound stream ended", "session_id", s.id)
				return nil
			}
			if len(msg.Frame.Data) == 0 {
				continue
			}
			if err := handle.SendAudio(msg.Frame.Data); err != nil {
				return fmt.Errorf("session: send audio: %w", err)
			}
		}
	}
}

// egress reads model events and handles each populated shape: interruptions
// flush stale outbound audio, tool calls are dispatched serially, audio
// fragments are forwarded in arrival order. It returns errStreamEnded when
// the event channel closes cleanly.
func (s *Session) egress(ctx context.Context, handle live.SessionHandle) error {
	events := handle.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := handle.Err(); err != nil {
					return fmt.Errorf("session: connection: %w", err)
				}
				return errStreamEnded
			}
			if err := s.handleEvent(ctx, handle, ev); err != nil {
				return err
			}
		}
	}
}

// handleEvent processes one server event. The shapes are not mutually
// exclusive; all populated fields are acted on.
func (s *Session) handleEvent(ctx context.Context, handle live.SessionHandle, ev live.ServerEvent) error {
	// Interruption: the user barged in, so whatever synthesised audio is
	// still queued belongs to the abandoned utterance. Flush before anything
	// else so stale frames never play after the new turn begins.
	if ev.Interrupted {
		if n := audio.Flush(s.out); n > 0 {
			slog.Debug("flushed stale outbound audio", "session_id", s.id, "frames", n)
		}
	}

	for _, call := range ev.ToolCalls {
		s.dispatchToolCall(ctx, handle, call)
	}

	for _, chunk := range ev.Audio {
		frame := audio.Frame{Data: chunk, SampleRate: audio.OutputRate, Channels: 1}
		select {
		case s.out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if ev.Text != "" {
		slog.Debug("model text", "session_id", s.id, "text", ev.Text)
		s.appendHistory("assistant", ev.Text)
	}

	return nil
}

// dispatchToolCall executes one model tool call and sends back exactly one
// result. Search failures — including panics inside the search stack — are
// converted into an error payload: the audio duties must keep running
// regardless of search outcome. Unknown tool names are logged and ignored
// with no result sent.
func (s *Session) dispatchToolCall(ctx context.Context, handle live.SessionHandle, call live.ToolCall) {
	log := slog.With("session_id", s.id, "call_id", call.ID, "tool", call.Name)

	if call.Name != SearchTool {
		log.Warn("unknown tool call ignored")
		s.metrics.RecordToolCall(ctx, call.Name, "unknown")
		return
	}

	query, _ := call.Args["query"].(string)
	log.Info("executing product search", "query", query)

	start := time.Now()
	payload, status := s.runSearch(ctx, query)
	s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordToolCall(ctx, call.Name, status)

	if err := handle.SendToolResult(call.ID, call.Name, payload); err != nil {
		log.Warn("failed to send tool result", "err", err)
		return
	}
	log.Info("tool result sent", "status", status, "query", query)
}

// runSearch executes the retry search and builds the tool result payload.
// It never panics or returns an error: every outcome maps to one of the
// found / not_found / error payload shapes.
func (s *Session) runSearch(ctx context.Context, query string) (payload map[string]any, status string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("search panicked", "session_id", s.id, "query", query, "panic", r)
			payload = map[string]any{
				"status":  "error",
				"query":   query,
				"message": fmt.Sprintf("Search failed: %v", r),
			}
			status = "error"
		}
	}()

	products, term := s.retrier.Search(ctx, query, s.platform)
	if len(products) == 0 {
		s.appendHistory("assistant", fmt.Sprintf("No products found for %q", query))
		return map[string]any{
			"status": "not_found",
			"query":  query,
			"message": fmt.Sprintf(
				"No products found for '%s' on %s after trying multiple search terms.",
				query, s.platform,
			),
		}, "not_found"
	}

	list := make([]map[string]any, len(products))
	cheapest := products[0]
	for i, p := range products {
		list[i] = map[string]any{
			"name":   p.Name,
			"price":  p.Price,
			"brand":  p.Brand,
			"weight": p.Weight,
		}
		if p.Price < cheapest.Price {
			cheapest = p
		}
	}

	s.appendHistory("assistant", fmt.Sprintf(
		"Found %d products for %q, cheapest %s at ₹%.0f",
		len(products), term, cheapest.Name, cheapest.Price,
	))

	return map[string]any{
		"status":           "found",
		"query":            query,
		"search_term_used": term,
		"products":         list,
		"cheapest": map[string]any{
			"name":  cheapest.Name,
			"price": cheapest.Price,
		},
	}, "found"
}

// appendHistory records a turn, best-effort.
func (s *Session) appendHistory(role, text string) {
	if s.hist == nil {
		return
	}
	turn := history.Turn{Role: role, Text: text, Timestamp: time.Now()}
	if err := s.hist.Append(context.Background(), s.id, turn); err != nil {
		slog.Warn("history append failed", "session_id", s.id, "err", err)
	}
}

// evictHistory discards the session's history window during teardown.
func (s *Session) evictHistory() {
	if s.hist == nil {
		return
	}
	if err := s.hist.Evict(context.Background(), s.id); err != nil {
		slog.Warn("history evict failed", "session_id", s.id, "err", err)
	}
}

// History returns recent turns for debugging endpoints. n <= 0 uses the
// store default.
func (s *Session) History(ctx context.Context, n int) ([]history.Turn, error) {
	if s.hist == nil {
		return nil, nil
	}
	return s.hist.Recent(ctx, s.id, n)
}
