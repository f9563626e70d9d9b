// Package capture owns the microphone: it acquires the device, accumulates
// PCM while a recording is live, feeds a loudness stream for visualization,
// and assembles the finished payload when recording stops.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
)

// SampleRate is the capture rate in Hz: PCM16LE mono.
const SampleRate = 16000

var (
	// ErrDeviceUnavailable reports a missing or permission-denied microphone.
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	// ErrNoAudioCaptured reports an empty finished payload.
	ErrNoAudioCaptured = errors.New("no audio captured")
	// ErrCaptureActive reports an attempt to open a second concurrent
	// recording. The state machine is supposed to make this impossible.
	ErrCaptureActive = errors.New("capture session already active")
)

// Device is the microphone capability provider.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live microphone feed. Chunks carries PCM16LE mono buffers at
// SampleRate until Close.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

// Pipeline manages the single exclusive CaptureSession.
type Pipeline struct {
	dev Device

	mu     sync.Mutex
	active *captureSession
}

func NewPipeline(dev Device) *Pipeline {
	return &Pipeline{dev: dev}
}

// Begin acquires the microphone and starts accumulating audio. It returns
// the session's loudness stream. At most one capture may be live at a time.
func (p *Pipeline) Begin(ctx context.Context) (<-chan float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return nil, ErrCaptureActive
	}
	stream, err := p.dev.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	sess := &captureSession{
		stream: stream,
		loud:   make(chan float64, 16),
		done:   make(chan struct{}),
	}
	go sess.consume()
	p.active = sess
	return sess.loud, nil
}

// End stops the live capture, releases the device, and returns the finished
// WAV payload. Without an active session it is a no-op returning nil.
func (p *Pipeline) End() []byte {
	p.mu.Lock()
	sess := p.active
	p.active = nil
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	pcm := sess.stop()
	if len(pcm) == 0 {
		return nil
	}
	return EncodeWAV(pcm, SampleRate)
}

// Active reports whether a capture session is currently live.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

// captureSession is the exclusive lease on the microphone between Begin and
// End. It owns the live loudness stream.
type captureSession struct {
	stream Stream

	mu     sync.Mutex
	buf    []byte
	closed bool

	loud chan float64
	done chan struct{}
}

func (s *captureSession) consume() {
	defer close(s.done)
	for chunk := range s.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		stopped := s.closed
		if !stopped {
			s.buf = append(s.buf, chunk...)
		}
		s.mu.Unlock()
		if stopped {
			return
		}
		// Visualization only: drop samples rather than block the feed.
		select {
		case s.loud <- Loudness(chunk):
		default:
		}
	}
}

// stop releases the device and returns everything buffered since Begin.
func (s *captureSession) stop() []byte {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		log.Printf("capture: close stream: %v", err)
	}
	<-s.done
	close(s.loud)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}

// Loudness derives a normalized 0.0-1.0 level from one PCM16LE chunk using
// short-window RMS energy.
func Loudness(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	level := rms / 32768.0
	if level > 1 {
		level = 1
	}
	return level
}
