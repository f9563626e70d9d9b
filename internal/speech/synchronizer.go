package speech

import (
	"context"
	"log"
	"sync"
)

// Reveal pairs an utterance's text with its ready-to-play audio. Audio is
// nil when synthesis is disabled or every engine failed; the text is then
// revealed on its own.
type Reveal struct {
	Text     string
	Audio    *PendingAudio
	Fallback bool
}

// Synchronizer prepares narration ahead of the reveal and enforces that at
// most one playback is ever live. A new commit supersedes and stops the
// previous playback before starting its own.
type Synchronizer struct {
	primary    Synthesizer
	fallback   Synthesizer
	sink       Sink
	sampleRate int
	enabled    bool

	mu      sync.Mutex
	current *PendingAudio
}

func NewSynchronizer(primary, fallback Synthesizer, sink Sink, sampleRate int, enabled bool) *Synchronizer {
	return &Synchronizer{
		primary:    primary,
		fallback:   fallback,
		sink:       sink,
		sampleRate: sampleRate,
		enabled:    enabled,
	}
}

// Prepare fetches the full synthesized payload for the utterance, falling
// back to the local voice when the remote engine is unavailable. Nothing is
// revealed or played yet. Synthesis failure is absorbed: the reveal then
// carries text only.
func (s *Synchronizer) Prepare(ctx context.Context, text string) (*Reveal, error) {
	if text == "" || !s.enabled {
		return &Reveal{Text: text}, nil
	}

	var (
		payload  []byte
		fallback bool
	)
	if s.primary != nil {
		var err error
		payload, err = s.primary.Synthesize(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("speech: remote synthesis unavailable, using local voice: %v", err)
		}
	}
	if payload == nil && s.fallback != nil {
		var err error
		payload, err = s.fallback.Synthesize(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("speech: local synthesis failed, revealing text only: %v", err)
		} else {
			fallback = true
		}
	}
	if payload == nil {
		return &Reveal{Text: text}, nil
	}
	return &Reveal{
		Text:     text,
		Audio:    NewPendingAudio(payload, s.sink, s.sampleRate),
		Fallback: fallback,
	}, nil
}

// Commit performs the atomic reveal: any previous playback is stopped, the
// caller's text commit runs, and playback starts - all in one step. The
// transcript entry and the narration start are never observable apart.
func (s *Synchronizer) Commit(r *Reveal, commitText func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
	}
	s.current = r.Audio
	if commitText != nil {
		commitText()
	}
	if r.Audio != nil {
		r.Audio.Play()
	}
}

// CancelCurrent stops and releases any armed or playing narration.
func (s *Synchronizer) CancelCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}
