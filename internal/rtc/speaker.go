package rtc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3/pkg/media"
)

// sampleWriter is the slice of TrackLocalStaticSample the writer needs.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// PacedWriter encodes 48kHz mono PCM to Opus frames and writes them to a
// WebRTC track paced at real time, 20ms per frame.
type PacedWriter struct {
	enc          *opus.Encoder
	track        sampleWriter
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	resetCh      chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewPacedWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewPacedWriter(track sampleWriter) (*PacedWriter, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := &PacedWriter{
		enc:          enc,
		track:        track,
		frameSamples: 960, // 20ms at 48kHz
		frames:       make(chan []byte, 512),
		stopCh:       make(chan struct{}),
		resetCh:      make(chan struct{}),
	}
	go w.pacer()
	return w, nil
}

// WritePCM buffers PCM 48kHz mono data and emits encoded Opus frames.
// Encoding happens under the lock; delivery to the paced queue happens
// outside it, so Reset and Close are never stuck behind a full queue.
func (w *PacedWriter) WritePCM(pcmBytes []byte) {
	if len(pcmBytes) < 2 {
		return
	}
	w.mu.Lock()
	need := len(pcmBytes) / 2
	startLen := len(w.pcmBuf)
	if cap(w.pcmBuf)-startLen < need {
		tmp := make([]int16, startLen, startLen+need+2048)
		copy(tmp, w.pcmBuf)
		w.pcmBuf = tmp
	}
	w.pcmBuf = w.pcmBuf[:startLen+need]
	for i := 0; i < need; i++ {
		w.pcmBuf[startLen+i] = int16(uint16(pcmBytes[2*i]) | uint16(pcmBytes[2*i+1])<<8)
	}

	var pkts [][]byte
	opusBuf := make([]byte, 4000)
	for len(w.pcmBuf) >= w.frameSamples {
		frame := w.pcmBuf[:w.frameSamples]
		n, _ := w.enc.Encode(frame, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			pkts = append(pkts, pkt)
		}
		copy(w.pcmBuf, w.pcmBuf[w.frameSamples:])
		w.pcmBuf = w.pcmBuf[:len(w.pcmBuf)-w.frameSamples]
	}
	reset := w.resetCh
	w.mu.Unlock()
	w.pushFrames(pkts, reset)
}

// FlushTail pads the remaining PCM to a full frame and adds a short silence
// tail to avoid clipping the end of an utterance.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	var pkts [][]byte
	opusBuf := make([]byte, 4000)
	if len(w.pcmBuf) > 0 {
		pad := make([]int16, w.frameSamples)
		copy(pad, w.pcmBuf)
		n, _ := w.enc.Encode(pad, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			pkts = append(pkts, pkt)
		}
		w.pcmBuf = w.pcmBuf[:0]
	}
	// ~200ms of silence (10 frames)
	silence := make([]int16, w.frameSamples)
	for i := 0; i < 10; i++ {
		n, _ := w.enc.Encode(silence, opusBuf)
		if n > 0 {
			pkt := make([]byte, n)
			copy(pkt, opusBuf[:n])
			pkts = append(pkts, pkt)
		}
	}
	reset := w.resetCh
	w.mu.Unlock()
	w.pushFrames(pkts, reset)
}

// Reset drops queued frames and buffered PCM so a superseding utterance can
// start immediately. Any writer blocked on the full queue is released.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	w.pcmBuf = w.pcmBuf[:0]
	close(w.resetCh)
	w.resetCh = make(chan struct{})
	for {
		select {
		case <-w.frames:
		default:
			w.mu.Unlock()
			return
		}
	}
}

// Close stops the pacer.
func (w *PacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *PacedWriter) pacer() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond})
			default:
			}
		}
	}
}

// pushFrames enqueues encoded frames without holding the lock, aborting when
// the writer stops or a reset supersedes this batch.
func (w *PacedWriter) pushFrames(pkts [][]byte, reset <-chan struct{}) {
	for _, pkt := range pkts {
		select {
		case <-w.stopCh:
			return
		case <-reset:
			return
		case w.frames <- pkt:
		}
	}
}

// Speaker routes synthesized PCM to whichever peer connection is currently
// attached. With no peer connected it swallows audio silently, so the session
// keeps working with text-only reveals.
type Speaker struct {
	w atomic.Pointer[PacedWriter]
}

func NewSpeaker() *Speaker { return &Speaker{} }

func (s *Speaker) WritePCM(pcm []byte) {
	if w := s.w.Load(); w != nil {
		w.WritePCM(pcm)
	}
}

func (s *Speaker) FlushTail() {
	if w := s.w.Load(); w != nil {
		w.FlushTail()
	}
}

func (s *Speaker) Reset() {
	if w := s.w.Load(); w != nil {
		w.Reset()
	}
}

func (s *Speaker) attach(w *PacedWriter) { s.w.Store(w) }

func (s *Speaker) detach(w *PacedWriter) {
	s.w.CompareAndSwap(w, nil)
	w.Close()
}
