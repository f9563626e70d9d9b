package speech

import (
	"context"
	"fmt"
	"os/exec"
)

// LocalEngine is the on-device fallback voice. It shells out to espeak-ng
// (or espeak), which renders the whole utterance to a WAV on stdout, so the
// same ready-means-fully-rendered contract holds with no network round trip.
type LocalEngine struct {
	Voice      string
	SampleRate int
}

func NewLocalEngine(voice string, sampleRate int) *LocalEngine {
	if voice == "" {
		voice = "en-us"
	}
	return &LocalEngine{Voice: voice, SampleRate: sampleRate}
}

// Available reports whether a local synthesis binary exists on this host.
func (e *LocalEngine) Available() bool {
	_, err := e.binary()
	return err == nil
}

func (e *LocalEngine) binary() (string, error) {
	if path, err := exec.LookPath("espeak-ng"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("espeak"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no espeak-ng or espeak binary on PATH")
}

func (e *LocalEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	bin, err := e.binary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, bin, "--stdout", "-v", e.Voice, text)
	wav, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSynthesisUnavailable, bin, err)
	}
	pcm, rate, err := ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	return Resample(pcm, rate, e.SampleRate), nil
}
