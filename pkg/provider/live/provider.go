// Package live defines the Provider interface for realtime conversational
// voice backends.
//
// A live provider wraps a speech-native model service that accepts raw audio
// input and returns synthesised audio output over a single stateful duplex
// session, surfacing structured tool-call requests along the way. The central
// abstraction is SessionHandle: one open connection carrying audio in both
// directions plus control events.
//
// Sessions are long-lived (seconds to minutes). All implementations must be
// safe for concurrent use.
package live

import "context"

// ToolDefinition declares one function the model may invoke mid-session.
type ToolDefinition struct {
	// Name is the function name the model calls.
	Name string

	// Description tells the model when to invoke the function.
	Description string

	// Parameters is a JSON-Schema object describing the arguments.
	Parameters map[string]any
}

// ToolCall is a structured function-invocation request emitted by the model.
// It is produced once by the session's event stream and must be answered with
// exactly one SendToolResult carrying the same ID.
type ToolCall struct {
	// ID uniquely identifies this call within the session's lifetime.
	ID string

	// Name is the invoked function's name.
	Name string

	// Args holds the decoded call arguments.
	Args map[string]any
}

// ServerEvent is one batch of model output read from the connection. The
// fields are not mutually exclusive: a single event may carry tool calls and
// audio fragments and an interruption marker at once. Consumers must handle
// every populated field.
type ServerEvent struct {
	// ToolCalls holds function invocations requested by the model, in order.
	ToolCalls []ToolCall

	// Audio holds synthesised PCM fragments (24 kHz s16le mono), in order.
	Audio [][]byte

	// Text is a textual annotation or output transcription, if any. Logged
	// for debugging; never parsed.
	Text string

	// Interrupted reports that the model abandoned its current utterance
	// (the user barged in). Any buffered output audio is stale.
	Interrupted bool

	// TurnComplete marks the end of a model turn.
	TurnComplete bool
}

// SessionConfig is the fixed configuration for a new live session. A session
// cannot be reconfigured after connect.
type SessionConfig struct {
	// Instructions is the system-level prompt applied for the whole session.
	Instructions string

	// Voice selects the prebuilt voice for speech output (provider-specific
	// voice name). Empty uses the provider default.
	Voice string

	// Tools is the set of functions offered to the model at setup time.
	Tools []ToolDefinition
}

// SessionHandle represents one open live session.
//
// The session is the hot path of the audio pipeline — SendAudio and
// SendToolResult must not block beyond the underlying write. Output is
// delivered on the Events channel, which the owner must drain promptly.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM chunk (16 kHz s16le mono) to the model.
	// Returns an error if the session is closed or the write fails.
	SendAudio(chunk []byte) error

	// SendToolResult answers a previously received ToolCall. callID and name
	// must match the originating call; payload is the structured result the
	// model will ground its next utterance on.
	SendToolResult(callID, name string, payload map[string]any) error

	// Events returns the channel on which model output arrives. The channel
	// is closed when the session ends; check Err afterwards to distinguish a
	// clean close from a connection failure.
	Events() <-chan ServerEvent

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly (or is still running).
	Err() error

	// Close terminates the session and releases the connection. Safe to call
	// more than once.
	Close() error
}

// Provider is the abstraction over any realtime voice backend.
type Provider interface {
	// Connect opens a new session with the given configuration. The returned
	// handle is ready to accept audio as soon as Connect returns.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
