// Package speech turns interviewer utterances into played audio. The
// synchronizer guarantees that a turn's text and the start of its narration
// become observable in the same step, fetching the full synthesized payload
// before anything is revealed.
package speech

import (
	"context"
	"errors"
)

// ErrSynthesisUnavailable reports a failed or disabled synthesizer.
// It triggers fallback and is never surfaced to the user.
var ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

// Synthesizer produces a complete PCM16LE mono payload for an utterance at
// the synchronizer's sample rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Sink consumes PCM bytes and performs delivery (e.g., Opus encode to
// WebRTC). Implementations buffer internally and pace delivery.
type Sink interface {
	// WritePCM may block on delivery backpressure. A concurrent Reset must
	// release any blocked writer.
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued frames immediately (used when a playback is
	// superseded or the session ends).
	Reset()
}
