package session

import (
	"math"
	"time"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/clock"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
)

// Role identifies who spoke a turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// Turn is one exchange in the conversation log. The log is append-only;
// insertion order is conversation order.
type Turn struct {
	Role  Role   `json:"role"`
	Text  string `json:"text"`
	Score *int   `json:"score,omitempty"`
}

// Config is the pre-session configuration chosen by the user.
type Config struct {
	Topic          string
	CompanyStyle   string
	Difficulty     string
	Mode           string
	Duration       time.Duration
	EnableTTS      bool
	ResumeText     string
	JobDescription string
}

// ScoreRecord is the append-only sequence of per-answer scores, parallel to
// the candidate turns that received one.
type ScoreRecord struct {
	scores []int
}

func (r *ScoreRecord) Append(score int) { r.scores = append(r.scores, score) }
func (r *ScoreRecord) Len() int         { return len(r.scores) }

func (r *ScoreRecord) Values() []int {
	out := make([]int, len(r.scores))
	copy(out, r.scores)
	return out
}

// Average is the running mean rounded to one decimal, matching the backend.
func (r *ScoreRecord) Average() float64 {
	if len(r.scores) == 0 {
		return 0
	}
	var sum int
	for _, s := range r.scores {
		sum += s
	}
	return math.Round(float64(sum)/float64(len(r.scores))*10) / 10
}

// Trend compares first and last score: improving, declining, or stable.
func (r *ScoreRecord) Trend() string {
	if len(r.scores) < 2 {
		return "stable"
	}
	first, last := r.scores[0], r.scores[len(r.scores)-1]
	switch {
	case last > first:
		return "improving"
	case last < first:
		return "declining"
	}
	return "stable"
}

func (r *ScoreRecord) Min() int {
	if len(r.scores) == 0 {
		return 0
	}
	m := r.scores[0]
	for _, s := range r.scores[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

func (r *ScoreRecord) Max() int {
	if len(r.scores) == 0 {
		return 0
	}
	m := r.scores[0]
	for _, s := range r.scores[1:] {
		if s > m {
			m = s
		}
	}
	return m
}

// Snapshot is the orchestrator state exposed to the presentation layer.
type Snapshot struct {
	SessionID     string           `json:"session_id,omitempty"`
	Phase         Phase            `json:"phase"`
	Topic         string           `json:"topic,omitempty"`
	Difficulty    string           `json:"difficulty,omitempty"`
	QuestionIndex int              `json:"question_index"`
	Turns         []Turn           `json:"turns"`
	Scores        []int            `json:"scores"`
	AverageScore  float64          `json:"average_score"`
	Trend         string           `json:"trend"`
	Timer         clock.TimerState `json:"timer"`
	Capturing     bool             `json:"capturing"`
	LastError     string           `json:"last_error,omitempty"`
	Summary       *eval.Summary    `json:"summary,omitempty"`
}
