package speech

import (
	"sync"
	"time"
)

// PendingAudio is the exclusive handle to one armed or playing narration
// payload. The synchronizer creates it armed; ownership then rests with the
// caller, which either plays it or discards it when superseded.
type PendingAudio struct {
	payload    []byte
	sink       Sink
	sampleRate int

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  chan struct{}
	done    chan struct{}
}

func NewPendingAudio(payload []byte, sink Sink, sampleRate int) *PendingAudio {
	return &PendingAudio{
		payload:    payload,
		sink:       sink,
		sampleRate: sampleRate,
		cancel:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Duration is the play length implied by the payload size.
func (p *PendingAudio) Duration() time.Duration {
	if p.sampleRate <= 0 {
		return 0
	}
	samples := len(p.payload) / 2
	return time.Duration(samples) * time.Second / time.Duration(p.sampleRate)
}

// Play hands the payload to the sink and completes Done once the implied
// play time has elapsed or the playback is stopped. Calling Play twice is a
// no-op.
func (p *PendingAudio) Play() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		if p.feed() {
			return
		}
		timer := time.NewTimer(p.Duration())
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-p.cancel:
		}
	}()
}

// feed delivers the payload to the sink in short chunks so a Stop between
// chunks takes effect within one chunk's worth of audio, even against a sink
// that blocks on backpressure. Reports whether the playback was cancelled.
func (p *PendingAudio) feed() bool {
	if p.sink == nil || len(p.payload) == 0 {
		return false
	}
	chunk := p.sampleRate / 5 * 2 // ~200ms of PCM16LE
	if chunk <= 0 {
		chunk = len(p.payload)
	}
	for off := 0; off < len(p.payload); off += chunk {
		select {
		case <-p.cancel:
			return true
		default:
		}
		end := off + chunk
		if end > len(p.payload) {
			end = len(p.payload)
		}
		p.sink.WritePCM(p.payload[off:end])
	}
	select {
	case <-p.cancel:
		return true
	default:
	}
	p.sink.FlushTail()
	return false
}

// Done completes when playback finished, errored, or was stopped. A playback
// error counts as finished so the session can never be stranded mid-speech.
func (p *PendingAudio) Done() <-chan struct{} { return p.done }

// Playing reports whether audio is currently being delivered.
func (p *PendingAudio) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop cancels the playback and drops any queued frames. The in-flight
// payload is discarded; Done completes promptly. Safe to call repeatedly.
func (p *PendingAudio) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	close(p.cancel)
	if p.sink != nil {
		p.sink.Reset()
	}
	if !started {
		// Never played: complete Done so waiters are released.
		close(p.done)
	}
}
