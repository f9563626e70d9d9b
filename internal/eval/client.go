package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors classify remote failures for the orchestrator. Every
// transport or server error surfaces wrapped in exactly one of these.
var (
	ErrSessionStart = errors.New("session start failed")
	ErrSessionEnd   = errors.New("session end failed")
	ErrEvaluation   = errors.New("evaluation failed")
	ErrTimer        = errors.New("timer unreachable")
	ErrCatalog      = errors.New("option catalog unavailable")
)

// Client talks to the interview backend. Each method is a single
// request/response exchange; there is no retry loop here - callers decide
// recovery.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// SessionConfig is the pre-session configuration sent on start.
type SessionConfig struct {
	Topic           string `json:"topic"`
	CompanyStyle    string `json:"company_style"`
	Difficulty      string `json:"difficulty"`
	DurationMinutes int    `json:"duration_minutes"`
	Mode            string `json:"mode,omitempty"`
	EnableTTS       bool   `json:"enable_tts"`
	ResumeText      string `json:"resume_text,omitempty"`
	JobDescription  string `json:"job_description,omitempty"`
}

// StartResult is the opening exchange returned by the backend.
type StartResult struct {
	SessionID       string `json:"session_id"`
	Topic           string `json:"topic"`
	Company         string `json:"company"`
	Difficulty      string `json:"difficulty"`
	Opening         string `json:"opening_message"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Reply is one evaluated answer round-trip: the candidate's transcript plus
// the interviewer's next prompt and running statistics.
type Reply struct {
	Transcript     string   `json:"user_text"`
	Prompt         string   `json:"ai_response"`
	QuestionNumber int      `json:"question_number"`
	Score          *int     `json:"score"`
	AverageScore   *float64 `json:"average_score"`
	TotalScores    int      `json:"total_scores"`
	Trend          string   `json:"difficulty_trend"`
}

// TimeReading is the backend's authoritative view of the session timer.
type TimeReading struct {
	ElapsedSeconds   int  `json:"elapsed_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	IsWarning        bool `json:"is_warning"`
	IsTimeUp         bool `json:"is_time_up"`
}

// ScoreStats aggregates per-answer scores for the final summary.
type ScoreStats struct {
	Individual []int    `json:"individual"`
	Average    *float64 `json:"average"`
	Min        *int     `json:"min"`
	Max        *int     `json:"max"`
	Trend      string   `json:"trend"`
}

// Summary is the final session assessment. Partial is set when the backend
// could not be reached and the summary was assembled client-side.
type Summary struct {
	SessionID       string     `json:"session_id"`
	Topic           string     `json:"topic"`
	Difficulty      string     `json:"difficulty"`
	TotalQuestions  int        `json:"total_questions"`
	Scores          ScoreStats `json:"scores"`
	Text            string     `json:"summary"`
	DurationSeconds int        `json:"duration_seconds"`
	Partial         bool       `json:"partial,omitempty"`
}

// StartSession opens a new interview and returns the opening prompt.
func (c *Client) StartSession(ctx context.Context, cfg SessionConfig) (*StartResult, error) {
	var out StartResult
	if err := c.postJSON(ctx, "/interview/start", cfg, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionStart, err)
	}
	if out.SessionID == "" || out.Opening == "" {
		return nil, fmt.Errorf("%w: backend returned empty session", ErrSessionStart)
	}
	return &out, nil
}

// SubmitAnswer uploads a finished recording and returns the evaluated reply.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, audio []byte, filename string) (*Reply, error) {
	if filename == "" {
		filename = "answer.wav"
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}

	url := c.BaseURL + "/interview/" + sessionID + "/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Reply
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	return &out, nil
}

// SessionTime fetches the authoritative timer values for one tick.
func (c *Client) SessionTime(ctx context.Context, sessionID string) (*TimeReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/interview/"+sessionID+"/time", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimer, err)
	}
	var out TimeReading
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimer, err)
	}
	return &out, nil
}

// EndSession terminates the interview and returns the final summary.
func (c *Client) EndSession(ctx context.Context, sessionID string) (*Summary, error) {
	var out Summary
	if err := c.postJSON(ctx, "/interview/"+sessionID+"/end", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionEnd, err)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
