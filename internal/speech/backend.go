package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// BackendSynthesizer fetches narration audio from the interview backend's
// /tts endpoint. The whole payload is read before returning so the caller
// can treat "ready" as "fully fetched".
type BackendSynthesizer struct {
	HTTPClient *http.Client
	BaseURL    string
	VoiceID    string
	SampleRate int
}

func NewBackendSynthesizer(baseURL, voiceID string, sampleRate int) *BackendSynthesizer {
	return &BackendSynthesizer{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		VoiceID:    voiceID,
		SampleRate: sampleRate,
	}
}

func (b *BackendSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	body := map[string]any{"text": text}
	if b.VoiceID != "" {
		body["voice"] = b.VoiceID
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/tts", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrSynthesisUnavailable, resp.StatusCode, string(msg))
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	pcm, rate, err := ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisUnavailable, err)
	}
	return Resample(pcm, rate, b.SampleRate), nil
}
