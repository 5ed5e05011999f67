// Package audio defines the value types for audio transport within Bolke.
//
// Audio flows through the system as raw 16-bit little-endian PCM. Client
// microphone input arrives at 16 kHz mono; synthesised model speech leaves at
// 24 kHz mono. Frames are the atomic unit of transport — each websocket
// message on the client connection and each media chunk on the model
// connection carries exactly one frame, with no additional framing.
package audio

import "time"

// Standard sample rates for the Bolke pipeline.
const (
	// InputRate is the sample rate of client microphone audio (Hz).
	InputRate = 16000

	// OutputRate is the sample rate of model speech audio (Hz).
	OutputRate = 24000
)

// Frame is a single chunk of PCM audio. Frames are never mutated after they
// are placed on a channel; ownership transfers with the send.
type Frame struct {
	// Data holds raw s16le PCM samples.
	Data []byte

	// SampleRate in Hz (InputRate for inbound, OutputRate for outbound).
	SampleRate int

	// Channels is the channel count. Always 1 in the current pipeline.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Message is one item on a session's inbound channel: either an audio frame
// or an end-of-stream marker. Modelling the terminator as a tagged variant
// (rather than a nil frame) makes the termination signal type-checked.
type Message struct {
	// Frame is the audio payload. Ignored when EndOfStream is true.
	Frame Frame

	// EndOfStream signals that no further frames will arrive. It terminates
	// the session's ingress duty without closing the session itself.
	EndOfStream bool
}

// FrameMessage wraps a frame in a Message.
func FrameMessage(f Frame) Message { return Message{Frame: f} }

// EndOfStreamMessage returns the inbound stream terminator.
func EndOfStreamMessage() Message { return Message{EndOfStream: true} }
