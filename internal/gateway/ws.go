package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/bolke-ai/bolke/pkg/audio"
)

// handleAudio handles GET /ws/audio. The client streams 16 kHz PCM as binary
// WebSocket messages and receives 24 kHz PCM back. An optional ?session= id
// names the session; a generated id is used otherwise.
//
// Closing the WebSocket (or any read error) is treated as the client's
// end-of-stream: the session keeps running until the model side winds down
// or the request context is cancelled.
func (g *Gateway) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")

	sess, err := g.sessions.Open(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer g.sessions.Release(context.Background(), sess.ID())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sess.ID(), "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	log := slog.With("session_id", sess.ID())
	log.Info("audio client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx) }()

	// Writer: model speech out to the client. Terminates when the session
	// closes its outbound channel.
	go func() {
		for frame := range sess.Out() {
			if err := conn.Write(ctx, websocket.MessageBinary, frame.Data); err != nil {
				log.Debug("outbound write ended", "err", err)
				cancel()
				return
			}
		}
	}()

	// Reader: client audio into the session. Any read error, including a
	// normal close, becomes the end-of-stream sentinel.
	go func() {
		start := time.Now()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				log.Debug("inbound read ended", "err", err)
				select {
				case sess.In() <- audio.EndOfStreamMessage():
				case <-ctx.Done():
				}
				return
			}
			if typ != websocket.MessageBinary || len(data) == 0 {
				continue
			}
			msg := audio.FrameMessage(audio.Frame{
				Data:       data,
				SampleRate: audio.InputRate,
				Channels:   1,
				Timestamp:  time.Since(start),
			})
			select {
			case sess.In() <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	err = <-runDone
	if err != nil {
		log.Error("session terminated with error", "err", err)
		conn.Close(websocket.StatusInternalError, "session failed")
		return
	}
	log.Info("audio client disconnected")
	conn.Close(websocket.StatusNormalClosure, "")
}
