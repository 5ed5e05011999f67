package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data from a streaming channel
// is not needed (e.g., the outbound channel of an abandoned session).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// Flush discards every value currently buffered on ch without blocking.
// It returns the number of values discarded. Used to clear stale synthesised
// audio from the outbound channel when the model reports an interruption.
func Flush[T any](ch <-chan T) int {
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
