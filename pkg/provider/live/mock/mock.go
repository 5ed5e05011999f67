// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to script the model's event stream and inspect the audio and
// tool results the session owner sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.EventsCh <- live.ServerEvent{Audio: [][]byte{{0x01}}}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/bolke-ai/bolke/pkg/provider/live"
)

// Compile-time interface checks.
var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*Session)(nil)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the handle returned by Connect. If nil, Connect returns a
	// fresh NewSession().
	Session live.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// ToolResultCall records a single invocation of Session.SendToolResult.
type ToolResultCall struct {
	CallID  string
	Name    string
	Payload map[string]any
}

// Session is a mock implementation of live.SessionHandle. Tests push model
// output onto EventsCh and close it to simulate the connection ending.
type Session struct {
	mu sync.Mutex

	// EventsCh is the event stream handed to the session owner.
	EventsCh chan live.ServerEvent

	// SentAudio records every chunk passed to SendAudio.
	SentAudio [][]byte

	// ToolResults records every SendToolResult call in order.
	ToolResults []ToolResultCall

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// SendToolResultErr, if non-nil, is returned by SendToolResult.
	SendToolResultErr error

	// ErrVal is returned by Err.
	ErrVal error

	// Closed reports whether Close was called.
	Closed bool
}

// NewSession builds a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{EventsCh: make(chan live.ServerEvent, 64)}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return fmt.Errorf("mock: session closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentAudio = append(s.SentAudio, cp)
	return nil
}

// SendToolResult records the call and returns SendToolResultErr.
func (s *Session) SendToolResult(callID, name string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendToolResultErr != nil {
		return s.SendToolResultErr
	}
	s.ToolResults = append(s.ToolResults, ToolResultCall{
		CallID:  callID,
		Name:    name,
		Payload: payload,
	})
	return nil
}

// Events returns EventsCh.
func (s *Session) Events() <-chan live.ServerEvent { return s.EventsCh }

// Err returns ErrVal.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close marks the session closed. It does not close EventsCh; tests control
// the event stream lifetime themselves.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// SentAudioSnapshot returns a copy of the recorded audio chunks. Thread-safe.
func (s *Session) SentAudioSnapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SentAudio))
	copy(out, s.SentAudio)
	return out
}

// ToolResultsSnapshot returns a copy of the recorded tool results. Thread-safe.
func (s *Session) ToolResultsSnapshot() []ToolResultCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolResultCall, len(s.ToolResults))
	copy(out, s.ToolResults)
	return out
}
