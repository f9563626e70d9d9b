package session

import (
	"fmt"
	"strings"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
)

// localSummaryLocked assembles a partial summary from the client-side turn
// and score data when the backend cannot deliver the final one.
func (o *Orchestrator) localSummaryLocked() eval.Summary {
	stats := eval.ScoreStats{
		Individual: o.scores.Values(),
		Trend:      o.scores.Trend(),
	}
	if o.scores.Len() > 0 {
		avg := o.scores.Average()
		mn := o.scores.Min()
		mx := o.scores.Max()
		stats.Average = &avg
		stats.Min = &mn
		stats.Max = &mx
	}

	var b strings.Builder
	b.WriteString("Session summary (assembled locally; the interview service was unreachable).\n")
	fmt.Fprintf(&b, "Questions asked: %d.", o.questionIndex)
	if o.scores.Len() > 0 {
		fmt.Fprintf(&b, " Scored answers: %d, average %.1f/10, trend %s.",
			o.scores.Len(), o.scores.Average(), o.scores.Trend())
	}

	var duration int
	if !o.createdAt.IsZero() {
		duration = int(o.now().Sub(o.createdAt).Seconds())
	}
	return eval.Summary{
		SessionID:       o.sessionID,
		Topic:           o.topic,
		Difficulty:      o.difficulty,
		TotalQuestions:  o.questionIndex,
		Scores:          stats,
		Text:            b.String(),
		DurationSeconds: duration,
		Partial:         true,
	}
}
