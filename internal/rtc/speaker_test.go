package rtc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

type fakeTrack struct{ writes int32 }

func (f *fakeTrack) WriteSample(s media.Sample) error {
	atomic.AddInt32(&f.writes, 1)
	return nil
}

func TestPacedWriter_PacerWritesFrames(t *testing.T) {
	ft := &fakeTrack{}
	w := &PacedWriter{
		enc:          nil, // encoder not needed for this test
		track:        ft,
		frameSamples: 960,
		frames:       make(chan []byte, 8),
		stopCh:       make(chan struct{}),
		resetCh:      make(chan struct{}),
	}
	done := make(chan struct{})
	go func() { w.pacer(); close(done) }()

	w.pushFrames([][]byte{{0x01}, {0x02}, {0x03}}, w.resetCh)

	time.Sleep(50 * time.Millisecond)
	close(w.stopCh)
	<-done

	if atomic.LoadInt32(&ft.writes) == 0 {
		t.Fatalf("expected pacer to write at least one frame")
	}
}

func TestPacedWriter_ResetDrains(t *testing.T) {
	ft := &fakeTrack{}
	w := &PacedWriter{
		enc:          nil,
		track:        ft,
		frameSamples: 960,
		frames:       make(chan []byte, 8),
		stopCh:       make(chan struct{}),
		resetCh:      make(chan struct{}),
		pcmBuf:       []int16{1, 2, 3},
	}
	w.frames <- []byte{0x01}
	w.frames <- []byte{0x02}
	w.Reset()
	select {
	case <-w.frames:
		t.Fatalf("expected frames channel to be drained")
	default:
	}
	if len(w.pcmBuf) != 0 {
		t.Fatalf("expected pcmBuf to be reset, got len=%d", len(w.pcmBuf))
	}
}

func TestPacedWriter_ResetReleasesBlockedPush(t *testing.T) {
	ft := &fakeTrack{}
	w := &PacedWriter{
		enc:          nil,
		track:        ft,
		frameSamples: 960,
		frames:       make(chan []byte, 1),
		stopCh:       make(chan struct{}),
		resetCh:      make(chan struct{}),
	}
	w.frames <- []byte{0x01} // queue full: the next push blocks

	reset := w.resetCh
	done := make(chan struct{})
	go func() {
		w.pushFrames([][]byte{{0x02}, {0x03}}, reset)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	w.Reset()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("blocked push must abort on reset")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("reset took %s, must not wait for the queue to drain", elapsed)
	}
}

func TestPacedWriter_ConcurrentWriteFlushReset(t *testing.T) {
	w, err := NewPacedWriter(&fakeTrack{})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	var wg sync.WaitGroup
	pcm := make([]byte, 960*2) // one 20ms frame
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				w.WritePCM(pcm)
				w.FlushTail()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			w.Reset()
			time.Sleep(time.Millisecond)
		}
	}()
	wg.Wait()
}

func TestSpeaker_NoPeerSwallowsAudio(t *testing.T) {
	s := NewSpeaker()
	// Must not panic with nothing attached.
	s.WritePCM([]byte{0x00, 0x01})
	s.FlushTail()
	s.Reset()
}

func TestSpeaker_DetachOnlyClearsOwnWriter(t *testing.T) {
	s := NewSpeaker()
	old := &PacedWriter{frames: make(chan []byte, 1), stopCh: make(chan struct{})}
	next := &PacedWriter{frames: make(chan []byte, 1), stopCh: make(chan struct{})}
	s.attach(old)
	s.attach(next)
	s.detach(old) // stale detach after a reconnect
	if s.w.Load() != next {
		t.Fatalf("stale detach must not clear the newer writer")
	}
	s.detach(next)
	if s.w.Load() != nil {
		t.Fatalf("expected speaker cleared after detaching current writer")
	}
}
