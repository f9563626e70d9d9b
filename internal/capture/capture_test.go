package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStream struct {
	chunks chan []byte
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan []byte, 32)}
}

func (f *fakeStream) Chunks() <-chan []byte { return f.chunks }
func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.chunks) })
	return nil
}

type fakeDevice struct {
	stream *fakeStream
	err    error
	opens  int
}

func (f *fakeDevice) Open(ctx context.Context) (Stream, error) {
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestBeginEnd_AssemblesWAVPayload(t *testing.T) {
	stream := newFakeStream()
	p := NewPipeline(&fakeDevice{stream: stream})

	if _, err := p.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	stream.chunks <- []byte{1, 0, 2, 0}
	stream.chunks <- []byte{3, 0}
	waitFor(t, func() bool { return len(stream.chunks) == 0 })
	time.Sleep(5 * time.Millisecond)

	payload := p.End()
	if payload == nil {
		t.Fatalf("expected payload")
	}
	if string(payload[0:4]) != "RIFF" || string(payload[8:12]) != "WAVE" {
		t.Fatalf("payload is not a WAV container")
	}
	dataLen := binary.LittleEndian.Uint32(payload[40:44])
	if dataLen != 6 {
		t.Fatalf("expected 6 data bytes, got %d", dataLen)
	}
	if rate := binary.LittleEndian.Uint32(payload[24:28]); rate != SampleRate {
		t.Fatalf("expected sample rate %d, got %d", SampleRate, rate)
	}
}

func TestBegin_SecondConcurrentCaptureRejected(t *testing.T) {
	stream := newFakeStream()
	p := NewPipeline(&fakeDevice{stream: stream})
	if _, err := p.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := p.Begin(context.Background()); !errors.Is(err, ErrCaptureActive) {
		t.Fatalf("expected ErrCaptureActive, got %v", err)
	}
	_ = p.End()
}

func TestEnd_WithoutActiveSessionIsNoop(t *testing.T) {
	p := NewPipeline(&fakeDevice{stream: newFakeStream()})
	if payload := p.End(); payload != nil {
		t.Fatalf("expected nil payload, got %d bytes", len(payload))
	}
}

func TestEnd_TwiceYieldsOnePayload(t *testing.T) {
	stream := newFakeStream()
	p := NewPipeline(&fakeDevice{stream: stream})
	if _, err := p.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	stream.chunks <- []byte{1, 0}
	time.Sleep(10 * time.Millisecond)

	first := p.End()
	second := p.End()
	if first == nil {
		t.Fatalf("expected payload on first end")
	}
	if second != nil {
		t.Fatalf("second end must be a no-op, got %d bytes", len(second))
	}
}

func TestBegin_DeviceUnavailable(t *testing.T) {
	p := NewPipeline(&fakeDevice{err: errors.New("permission denied")})
	_, err := p.Begin(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if p.Active() {
		t.Fatalf("no session must be active after failed begin")
	}
}

func TestLoudness_StreamsAndDropsUnderLoad(t *testing.T) {
	stream := newFakeStream()
	p := NewPipeline(&fakeDevice{stream: stream})
	loud, err := p.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Flood without draining; capture must keep accumulating regardless.
	for i := 0; i < 100; i++ {
		stream.chunks <- []byte{0, 0x40, 0, 0x40}
	}
	time.Sleep(20 * time.Millisecond)
	payload := p.End()
	if payload == nil {
		t.Fatalf("expected payload despite undained loudness stream")
	}
	var got int
	for range loud {
		got++
	}
	if got == 0 || got > 16 {
		t.Fatalf("expected bounded loudness samples, got %d", got)
	}
}

func TestLoudness_NormalizedRange(t *testing.T) {
	silent := make([]byte, 320)
	if l := Loudness(silent); l != 0 {
		t.Fatalf("silence must be 0, got %f", l)
	}
	loudChunk := make([]byte, 320)
	for i := 0; i < len(loudChunk); i += 2 {
		binary.LittleEndian.PutUint16(loudChunk[i:i+2], uint16(int16(30000)))
	}
	l := Loudness(loudChunk)
	if l <= 0.5 || l > 1.0 {
		t.Fatalf("expected near-full level, got %f", l)
	}
}

func TestEnd_EmptyRecordingYieldsNoPayload(t *testing.T) {
	stream := newFakeStream()
	p := NewPipeline(&fakeDevice{stream: stream})
	if _, err := p.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Stop before any audio arrives: tolerated, no payload.
	if payload := p.End(); payload != nil {
		t.Fatalf("expected nil payload for empty capture")
	}
}
