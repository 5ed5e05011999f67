package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bolke-ai/bolke/internal/history"
	"github.com/bolke-ai/bolke/internal/search"
	"github.com/bolke-ai/bolke/internal/session"
	"github.com/bolke-ai/bolke/pkg/audio"
	"github.com/bolke-ai/bolke/pkg/provider/live"
	"github.com/bolke-ai/bolke/pkg/provider/live/mock"
	"github.com/bolke-ai/bolke/pkg/shop"
)

const runTimeout = 5 * time.Second

// scriptedSearcher returns fixed products per query term.
type scriptedSearcher struct {
	mu      sync.Mutex
	results map[string][]shop.Product
	panics  bool
}

func (s *scriptedSearcher) Search(_ context.Context, query, _ string, _ int) ([]shop.Product, error) {
	if s.panics {
		panic("scripted searcher panic")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[query], nil
}

// newTestSession wires a session over the given mock handle and searcher.
func newTestSession(handle *mock.Session, searcher search.Searcher) (*session.Session, *mock.Provider) {
	p := &mock.Provider{Session: handle}
	s := session.New(session.Config{
		ID:       "test-session",
		Provider: p,
		Retrier:  search.NewRetrier(searcher, 5),
		Platform: "zepto",
		History:  history.NewMemStore(10),
	})
	return s, p
}

// runSession starts Run in a goroutine and returns a channel with its result.
func runSession(ctx context.Context, s *session.Session) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

// waitRun asserts Run finishes within the test timeout and returns its error.
func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(runTimeout):
		t.Fatal("session.Run did not finish")
		return nil
	}
}

func frame(data []byte) audio.Message {
	return audio.FrameMessage(audio.Frame{Data: data, SampleRate: audio.InputRate, Channels: 1})
}

// ─── TestRun_ConnectFailure ──────────────────────────────────────────────────

func TestRun_ConnectFailure(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{ConnectErr: errors.New("api key rejected")}
	s := session.New(session.Config{ID: "s1", Provider: p, Retrier: search.NewRetrier(&scriptedSearcher{}, 5)})

	err := waitRun(t, runSession(context.Background(), s))
	if err == nil {
		t.Fatal("want connect error")
	}
	if got := s.State(); got != session.StateFailed {
		t.Errorf("State = %v, want FAILED", got)
	}
	// Outbound channel must be closed so consumers unblock.
	if _, ok := <-s.Out(); ok {
		t.Error("Out() still open after failed connect")
	}
}

// ─── TestRun_ForwardsClientAudio ─────────────────────────────────────────────

func TestRun_ForwardsClientAudio(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	s.In() <- frame([]byte{0x01, 0x02})
	s.In() <- frame([]byte{0x03})

	// Poll until both chunks arrived, then end the stream.
	deadline := time.Now().Add(runTimeout)
	for len(handle.SentAudioSnapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("audio never forwarded: %v", handle.SentAudioSnapshot())
		}
		time.Sleep(time.Millisecond)
	}
	close(handle.EventsCh)

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.State(); got != session.StateClosed {
		t.Errorf("State = %v, want CLOSED", got)
	}

	sent := handle.SentAudioSnapshot()
	if string(sent[0]) != "\x01\x02" || string(sent[1]) != "\x03" {
		t.Errorf("forwarded audio out of order: %v", sent)
	}
}

// ─── TestRun_SentinelEndsIngressOnly ─────────────────────────────────────────

func TestRun_SentinelEndsIngressOnly(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	s.In() <- audio.EndOfStreamMessage()

	// The model can still speak after the client stops sending.
	handle.EventsCh <- live.ServerEvent{Audio: [][]byte{{0xAA}}}

	select {
	case f, ok := <-s.Out():
		if !ok {
			t.Fatal("Out() closed before model audio was delivered")
		}
		if len(f.Data) != 1 || f.Data[0] != 0xAA {
			t.Fatalf("unexpected frame %v", f.Data)
		}
	case <-time.After(runTimeout):
		t.Fatal("model audio never delivered after sentinel")
	}

	close(handle.EventsCh)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// ─── TestRun_ToolCallFound ───────────────────────────────────────────────────

func TestRun_ToolCallFound(t *testing.T) {
	t.Parallel()

	searcher := &scriptedSearcher{results: map[string][]shop.Product{
		"maggi": {
			{Name: "Maggi 140g", Price: 28},
			{Name: "Maggi 70g", Price: 14},
		},
	}}
	handle := mock.NewSession()
	s, _ := newTestSession(handle, searcher)
	done := runSession(context.Background(), s)

	handle.EventsCh <- live.ServerEvent{ToolCalls: []live.ToolCall{{
		ID: "call-1", Name: session.SearchTool, Args: map[string]any{"query": "maggi"},
	}}}
	close(handle.EventsCh)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := handle.ToolResultsSnapshot()
	if len(results) != 1 {
		t.Fatalf("want exactly 1 tool result, got %d", len(results))
	}
	res := results[0]
	if res.CallID != "call-1" || res.Name != session.SearchTool {
		t.Errorf("tool result addressed wrong call: %+v", res)
	}
	if res.Payload["status"] != "found" {
		t.Fatalf("status = %v, want found", res.Payload["status"])
	}
	if res.Payload["search_term_used"] != "maggi" {
		t.Errorf("search_term_used = %v", res.Payload["search_term_used"])
	}
	cheapest, _ := res.Payload["cheapest"].(map[string]any)
	if cheapest["name"] != "Maggi 70g" {
		t.Errorf("cheapest = %v, want Maggi 70g", cheapest)
	}
}

// ─── TestRun_ToolCallNotFound ────────────────────────────────────────────────

func TestRun_ToolCallNotFound(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	handle.EventsCh <- live.ServerEvent{ToolCalls: []live.ToolCall{{
		ID: "call-1", Name: session.SearchTool, Args: map[string]any{"query": "unobtainium"},
	}}}
	close(handle.EventsCh)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := handle.ToolResultsSnapshot()
	if len(results) != 1 {
		t.Fatalf("want exactly 1 tool result, got %d", len(results))
	}
	if results[0].Payload["status"] != "not_found" {
		t.Errorf("status = %v, want not_found", results[0].Payload["status"])
	}
}

// ─── TestRun_ToolPanicBecomesErrorResult ─────────────────────────────────────

func TestRun_ToolPanicBecomesErrorResult(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, _ := newTestSession(handle, &scriptedSearcher{panics: true})
	done := runSession(context.Background(), s)

	handle.EventsCh <- live.ServerEvent{ToolCalls: []live.ToolCall{{
		ID: "call-1", Name: session.SearchTool, Args: map[string]any{"query": "maggi"},
	}}}
	// The session must survive the panic and keep handling events.
	handle.EventsCh <- live.ServerEvent{Audio: [][]byte{{0x7F}}}
	close(handle.EventsCh)

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := handle.ToolResultsSnapshot()
	if len(results) != 1 {
		t.Fatalf("want exactly 1 tool result, got %d", len(results))
	}
	if results[0].Payload["status"] != "error" {
		t.Errorf("status = %v, want error", results[0].Payload["status"])
	}

	var frames [][]byte
	for f := range s.Out() {
		frames = append(frames, f.Data)
	}
	if len(frames) != 1 {
		t.Errorf("audio after a failed tool call was lost: %v", frames)
	}
}

// ─── TestRun_UnknownToolIgnored ──────────────────────────────────────────────

func TestRun_UnknownToolIgnored(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	handle.EventsCh <- live.ServerEvent{ToolCalls: []live.ToolCall{{
		ID: "call-1", Name: "order_rocket", Args: map[string]any{},
	}}}
	close(handle.EventsCh)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("unknown tool must not fail the session: %v", err)
	}
	if got := handle.ToolResultsSnapshot(); len(got) != 0 {
		t.Errorf("unknown tool produced a result: %+v", got)
	}
}

// ─── TestRun_InterruptionFlushesPendingAudio ─────────────────────────────────

func TestRun_InterruptionFlushesPendingAudio(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	// Queue stale speech, then the barge-in, then the new turn's audio.
	// No consumer reads Out() until the session ends, so the stale frames
	// are still buffered when the interruption arrives.
	handle.EventsCh <- live.ServerEvent{Audio: [][]byte{{0x01}, {0x02}, {0x03}}}
	handle.EventsCh <- live.ServerEvent{Interrupted: true}
	handle.EventsCh <- live.ServerEvent{Audio: [][]byte{{0x04}}}
	close(handle.EventsCh)

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var frames [][]byte
	for f := range s.Out() {
		frames = append(frames, f.Data)
	}
	if len(frames) != 1 || frames[0][0] != 0x04 {
		t.Fatalf("want only the post-interruption frame, got %v", frames)
	}
}

// ─── TestRun_SendAudioFailureFailsSession ────────────────────────────────────

func TestRun_SendAudioFailureFailsSession(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	handle.SendAudioErr = errors.New("connection reset")
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	s.In() <- frame([]byte{0x01})

	if err := waitRun(t, done); err == nil {
		t.Fatal("want duty failure error")
	}
	if got := s.State(); got != session.StateFailed {
		t.Errorf("State = %v, want FAILED", got)
	}
}

// ─── TestRun_ConnectionErrorFailsSession ─────────────────────────────────────

func TestRun_ConnectionErrorFailsSession(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	handle.ErrVal = errors.New("websocket: close 1011")
	s, _ := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	close(handle.EventsCh)

	if err := waitRun(t, done); err == nil {
		t.Fatal("want connection error")
	}
	if got := s.State(); got != session.StateFailed {
		t.Errorf("State = %v, want FAILED", got)
	}
}

// ─── TestRun_RegistersSearchTool ─────────────────────────────────────────────

func TestRun_RegistersSearchTool(t *testing.T) {
	t.Parallel()

	handle := mock.NewSession()
	s, p := newTestSession(handle, &scriptedSearcher{})
	done := runSession(context.Background(), s)

	close(handle.EventsCh)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(p.ConnectCalls) != 1 {
		t.Fatalf("want 1 Connect call, got %d", len(p.ConnectCalls))
	}
	cfg := p.ConnectCalls[0].Cfg
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != session.SearchTool {
		t.Errorf("Connect tools = %+v, want single %s", cfg.Tools, session.SearchTool)
	}
	if cfg.Instructions == "" {
		t.Error("Connect called without system instructions")
	}
}

// ─── TestManager_OpenAndRelease ──────────────────────────────────────────────

func TestManager_OpenAndRelease(t *testing.T) {
	t.Parallel()

	m := session.NewManager(session.ManagerConfig{
		Provider: &mock.Provider{},
		Retrier:  search.NewRetrier(&scriptedSearcher{}, 5),
		Platform: "zepto",
	})

	s, err := m.Open(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.ID() != "room-1" || m.Count() != 1 {
		t.Fatalf("registry state wrong: id=%q count=%d", s.ID(), m.Count())
	}

	if _, err := m.Open(context.Background(), "room-1"); err == nil {
		t.Fatal("duplicate id must be rejected")
	}

	m.Release(context.Background(), "room-1")
	if m.Count() != 0 {
		t.Errorf("Count = %d after release, want 0", m.Count())
	}
	if m.Get("room-1") != nil {
		t.Error("released session still resolvable")
	}
}

// ─── TestManager_GeneratesIDs ────────────────────────────────────────────────

func TestManager_GeneratesIDs(t *testing.T) {
	t.Parallel()

	m := session.NewManager(session.ManagerConfig{
		Provider: &mock.Provider{},
		Retrier:  search.NewRetrier(&scriptedSearcher{}, 5),
	})

	a, err := m.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := m.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("generated ids not unique: %q, %q", a.ID(), b.ID())
	}
}
