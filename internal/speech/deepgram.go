package speech

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramSynthesizer is the premium voice: Deepgram Aura over the speak
// WebSocket, requested as linear16 at the target sample rate. The payload is
// accumulated until the stream goes idle, then returned whole.
type DeepgramSynthesizer struct {
	apiKey     string
	model      string
	sampleRate int
}

func NewDeepgramSynthesizer(apiKey, model string, sampleRate int) *DeepgramSynthesizer {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramSynthesizer{apiKey: apiKey, model: model, sampleRate: sampleRate}
}

func (d *DeepgramSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("%w: deepgram API key missing", ErrSynthesisUnavailable)
	}
	if text == "" {
		return nil, nil
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}

	var (
		mu       sync.Mutex
		payload  []byte
		lastRecv time.Time
	)
	cb := &speakCollector{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		mu.Lock()
		payload = append(payload, data...)
		lastRecv = time.Now()
		mu.Unlock()
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("%w: create ws client: %w", ErrSynthesisUnavailable, err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("%w: deepgram connect failed", ErrSynthesisUnavailable)
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("%w: speak text: %w", ErrSynthesisUnavailable, err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("speech: deepgram flush: %v", err)
	}

	// The stream has no explicit end-of-audio marker; treat a quiet window
	// after the first bytes as completion, bounded by a hard deadline.
	const idleWindow = 400 * time.Millisecond
	deadline := time.Now().Add(12 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, ctx.Err())
		case <-ticker.C:
			mu.Lock()
			got := len(payload)
			last := lastRecv
			mu.Unlock()
			if got > 0 && time.Since(last) > idleWindow {
				return payload, nil
			}
			if time.Now().After(deadline) {
				if got == 0 {
					return nil, fmt.Errorf("%w: deepgram produced no audio", ErrSynthesisUnavailable)
				}
				return payload, nil
			}
		}
	}
}

type speakCollector struct{ onBinary func([]byte) error }

func (s *speakCollector) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCollector) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCollector) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCollector) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCollector) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCollector) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCollector) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCollector) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCollector) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
