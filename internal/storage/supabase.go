package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
)

// Config holds the Supabase storage settings.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Recordings archives answer recordings to a Supabase storage bucket. It
// satisfies the session layer's Archiver.
type Recordings struct {
	client *supabase.Client
	bucket string
}

func New(cfg Config) (*Recordings, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Recordings{client: client, bucket: cfg.Bucket}, nil
}

// SaveRecording uploads one answer's WAV payload keyed by session and
// question number.
func (r *Recordings) SaveRecording(ctx context.Context, sessionID string, question int, wav []byte) error {
	key := ObjectKey(sessionID, question)
	if _, err := r.client.Storage.UploadFile(r.bucket, key, bytes.NewReader(wav)); err != nil {
		return fmt.Errorf("upload recording %s: %w", key, err)
	}
	return nil
}

// SaveSummary uploads the final session summary as JSON next to the
// session's recordings.
func (r *Recordings) SaveSummary(ctx context.Context, sessionID string, summary eval.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", sessionID, err)
	}
	key := SummaryKey(sessionID)
	if _, err := r.client.Storage.UploadFile(r.bucket, key, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("upload summary %s: %w", key, err)
	}
	return nil
}

// ObjectKey is the bucket path for one answer recording.
func ObjectKey(sessionID string, question int) string {
	return fmt.Sprintf("sessions/%s/answer_%03d.wav", sessionID, question)
}

// SummaryKey is the bucket path for a session's final summary.
func SummaryKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/summary.json", sessionID)
}
