package rtc

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/capture"
)

// ErrNoPeer is returned when capture is requested before a browser has
// published an audio track.
var ErrNoPeer = errors.New("no peer audio track connected")

// Bridge adapts the browser's published audio track to the capture pipeline.
// The RTP reader feeds decoded 16kHz PCM chunks in; at most one capture
// stream consumes them at a time.
type Bridge struct {
	mu        sync.Mutex
	connected bool
	stream    *bridgeStream
	dropped   int
}

func NewBridge() *Bridge { return &Bridge{} }

// Open starts a capture stream over the connected track. It fails when no
// peer has published audio yet.
func (b *Bridge) Open(ctx context.Context) (capture.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, ErrNoPeer
	}
	if b.stream != nil {
		b.stream.closeLocked()
	}
	s := &bridgeStream{bridge: b, ch: make(chan []byte, 256)}
	b.stream = s
	return s, nil
}

// Feed delivers one decoded PCM chunk from the RTP reader. Chunks arriving
// while no capture stream is open are discarded; a full stream buffer drops
// the chunk rather than stalling the reader.
func (b *Bridge) Feed(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stream
	if s == nil || s.closed {
		return
	}
	chunk := make([]byte, len(pcm))
	copy(chunk, pcm)
	select {
	case s.ch <- chunk:
	default:
		b.dropped++
		if b.dropped%50 == 1 {
			log.Printf("rtc: capture consumer lagging, dropped %d chunks", b.dropped)
		}
	}
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = v
	if !v && b.stream != nil {
		b.stream.closeLocked()
		b.stream = nil
	}
}

// Connected reports whether a peer audio track is live.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

type bridgeStream struct {
	bridge *Bridge
	ch     chan []byte
	closed bool
}

func (s *bridgeStream) Chunks() <-chan []byte { return s.ch }

func (s *bridgeStream) Close() error {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	s.closeLocked()
	if s.bridge.stream == s {
		s.bridge.stream = nil
	}
	return nil
}

// closeLocked requires the bridge mutex. Feed holds the same mutex, so a
// send on the closed channel cannot race this.
func (s *bridgeStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
