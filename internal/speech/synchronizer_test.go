package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSynth struct {
	payload []byte
	err     error
	calls   int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type fakeSink struct {
	mu     sync.Mutex
	wrote  int
	resets int
}

func (s *fakeSink) WritePCM(p []byte) { s.mu.Lock(); s.wrote += len(p); s.mu.Unlock() }
func (s *fakeSink) FlushTail()        {}
func (s *fakeSink) Reset()            { s.mu.Lock(); s.resets++; s.mu.Unlock() }

// small payload so implied play time stays in the millisecond range
func shortPayload() []byte { return make([]byte, 960) }

func TestPrepare_FetchesBeforeReveal(t *testing.T) {
	primary := &fakeSynth{payload: shortPayload()}
	sink := &fakeSink{}
	syn := NewSynchronizer(primary, nil, sink, 48000, true)

	r, err := syn.Prepare(context.Background(), "Tell me about yourself.")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if r.Audio == nil {
		t.Fatalf("expected armed audio")
	}
	sink.mu.Lock()
	wrote := sink.wrote
	sink.mu.Unlock()
	if wrote != 0 {
		t.Fatalf("nothing may play before commit, sink got %d bytes", wrote)
	}
	if r.Audio.Playing() {
		t.Fatalf("audio must be armed, not playing")
	}
}

func TestCommit_TextAndPlaybackTogether(t *testing.T) {
	primary := &fakeSynth{payload: shortPayload()}
	sink := &fakeSink{}
	syn := NewSynchronizer(primary, nil, sink, 48000, true)

	r, err := syn.Prepare(context.Background(), "Next question.")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	var committed bool
	syn.Commit(r, func() { committed = true })
	if !committed {
		t.Fatalf("text commit must run during Commit")
	}
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		wrote := sink.wrote
		sink.mu.Unlock()
		if wrote > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.wrote == 0 {
		t.Fatalf("playback did not start after commit")
	}
}

func TestPrepare_FallsBackToLocalVoice(t *testing.T) {
	primary := &fakeSynth{err: errors.New("remote down")}
	fallback := &fakeSynth{payload: shortPayload()}
	syn := NewSynchronizer(primary, fallback, &fakeSink{}, 48000, true)

	r, err := syn.Prepare(context.Background(), "Tell me about a challenge you faced")
	if err != nil {
		t.Fatalf("prepare must absorb synthesis failure, got %v", err)
	}
	if r.Audio == nil || !r.Fallback {
		t.Fatalf("expected fallback audio, got audio=%v fallback=%v", r.Audio != nil, r.Fallback)
	}
	if atomic.LoadInt32(&fallback.calls) != 1 {
		t.Fatalf("expected one fallback call, got %d", fallback.calls)
	}
}

func TestPrepare_BothEnginesFailRevealsTextOnly(t *testing.T) {
	primary := &fakeSynth{err: errors.New("remote down")}
	fallback := &fakeSynth{err: errors.New("no espeak")}
	syn := NewSynchronizer(primary, fallback, &fakeSink{}, 48000, true)

	r, err := syn.Prepare(context.Background(), "hello")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if r.Audio != nil {
		t.Fatalf("expected text-only reveal")
	}
}

func TestPrepare_DisabledSkipsSynthesis(t *testing.T) {
	primary := &fakeSynth{payload: shortPayload()}
	syn := NewSynchronizer(primary, nil, &fakeSink{}, 48000, false)

	r, err := syn.Prepare(context.Background(), "hello")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if r.Audio != nil || atomic.LoadInt32(&primary.calls) != 0 {
		t.Fatalf("synthesis must be skipped when disabled")
	}
}

func TestCommit_SupersedesPreviousPlayback(t *testing.T) {
	sink := &fakeSink{}
	// long payload so the first playback is still live when superseded
	long := make([]byte, 48000*2)
	syn := NewSynchronizer(&fakeSynth{payload: long}, nil, sink, 48000, true)

	first, err := syn.Prepare(context.Background(), "first")
	if err != nil {
		t.Fatalf("prepare first: %v", err)
	}
	syn.Commit(first, nil)
	time.Sleep(10 * time.Millisecond)
	if !first.Audio.Playing() {
		t.Fatalf("first playback should be live")
	}

	second, err := syn.Prepare(context.Background(), "second")
	if err != nil {
		t.Fatalf("prepare second: %v", err)
	}
	syn.Commit(second, nil)

	select {
	case <-first.Audio.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("superseded playback must complete promptly")
	}
	if first.Audio.Playing() && second.Audio.Playing() {
		t.Fatalf("two playbacks may never overlap")
	}
	sink.mu.Lock()
	resets := sink.resets
	sink.mu.Unlock()
	if resets == 0 {
		t.Fatalf("superseding must drop the previous queued frames")
	}
}

func TestCancelCurrent_ReleasesArmedAudio(t *testing.T) {
	syn := NewSynchronizer(&fakeSynth{payload: make([]byte, 48000*2)}, nil, &fakeSink{}, 48000, true)
	r, err := syn.Prepare(context.Background(), "hello")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	syn.Commit(r, nil)
	syn.CancelCurrent()
	select {
	case <-r.Audio.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("cancelled playback must complete Done")
	}
}

// blockingSink stalls every WritePCM until Reset, mimicking a delivery path
// whose frame queue is full.
type blockingSink struct {
	mu      sync.Mutex
	release chan struct{}
	writes  int32
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) WritePCM(p []byte) {
	atomic.AddInt32(&s.writes, 1)
	s.mu.Lock()
	release := s.release
	s.mu.Unlock()
	<-release
}

func (s *blockingSink) FlushTail() {}

func (s *blockingSink) Reset() {
	s.mu.Lock()
	select {
	case <-s.release:
	default:
		close(s.release)
	}
	s.mu.Unlock()
}

func TestStop_ReleasesBlockedSinkWrite(t *testing.T) {
	sink := newBlockingSink()
	// 5 seconds of audio, many chunks
	pa := NewPendingAudio(make([]byte, 48000*2*5), sink, 48000)
	pa.Play()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&sink.writes) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if atomic.LoadInt32(&sink.writes) == 0 {
		t.Fatalf("playback never reached the sink")
	}

	start := time.Now()
	pa.Stop()
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("Stop blocked %s against a backpressured sink", elapsed)
	}
	select {
	case <-pa.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("stopped playback must complete Done promptly")
	}
	if atomic.LoadInt32(&sink.writes) > 2 {
		t.Fatalf("stop must abort the feed between chunks, sink saw %d writes", sink.writes)
	}
}

func TestCancelCurrent_PromptUnderSinkBackpressure(t *testing.T) {
	sink := newBlockingSink()
	long := make([]byte, 48000*2*5)
	syn := NewSynchronizer(&fakeSynth{payload: long}, nil, sink, 48000, true)

	r, err := syn.Prepare(context.Background(), "a long narration")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	syn.Commit(r, nil)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&sink.writes) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	start := time.Now()
	syn.CancelCurrent()
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("CancelCurrent blocked %s against a backpressured sink", elapsed)
	}
	select {
	case <-r.Audio.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("cancelled playback must complete Done promptly")
	}
}

func TestPendingAudio_StopBeforePlay(t *testing.T) {
	pa := NewPendingAudio(shortPayload(), &fakeSink{}, 48000)
	pa.Stop()
	select {
	case <-pa.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("stopped-before-play audio must complete Done")
	}
	pa.Play() // must be a no-op
	if pa.Playing() {
		t.Fatalf("stopped audio cannot play")
	}
}
