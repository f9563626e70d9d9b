// Package clock tracks elapsed and remaining session time. Each tick prefers
// the backend's authoritative reading; when the backend is slow or
// unreachable the tick is served from the locally recorded start instant, so
// a flaky network never stalls or drifts the timer.
package clock

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
)

// warningSeconds is the remaining-time threshold below which the timer is in
// its warning window. Matches the backend's threshold so local fallback ticks
// agree with remote ones.
const warningSeconds = 300

// tickTimeout bounds each tick's network attempt. A slow response falls back
// to the local derivation for that tick only.
const tickTimeout = 800 * time.Millisecond

// TimerState is the derived view for one tick.
type TimerState struct {
	ElapsedSeconds   int  `json:"elapsed_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	IsWarning        bool `json:"is_warning"`
	IsTimeUp         bool `json:"is_time_up"`
}

// Derive computes TimerState from elapsed seconds and the configured total.
func Derive(elapsed, totalSeconds int) TimerState {
	remaining := totalSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return withFlags(elapsed, remaining)
}

// withFlags recomputes the warning/time-up flags from elapsed/remaining,
// whichever source they came from.
func withFlags(elapsed, remaining int) TimerState {
	return TimerState{
		ElapsedSeconds:   elapsed,
		RemainingSeconds: remaining,
		IsWarning:        remaining <= warningSeconds && remaining > 0,
		IsTimeUp:         remaining <= 0,
	}
}

// TimeSource fetches the backend's authoritative timer reading.
// *eval.Client satisfies it.
type TimeSource interface {
	SessionTime(ctx context.Context, sessionID string) (*eval.TimeReading, error)
}

// Service ticks once per second for an active session.
type Service struct {
	source    TimeSource
	sessionID string
	duration  time.Duration
	start     time.Time
	now       func() time.Time

	mu      sync.Mutex
	state   TimerState
	updates chan TimerState
	stopCh  chan struct{}
	stopped bool
}

// NewService records the session start instant and prepares the ticker.
func NewService(source TimeSource, sessionID string, duration time.Duration) *Service {
	s := &Service{
		source:    source,
		sessionID: sessionID,
		duration:  duration,
		now:       time.Now,
		updates:   make(chan TimerState, 8),
		stopCh:    make(chan struct{}),
	}
	s.start = s.now()
	s.state = Derive(0, int(duration/time.Second))
	return s
}

// Run ticks once per second until Stop or context cancellation.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one reconciliation round: remote first, local fallback.
func (s *Service) Tick(ctx context.Context) TimerState {
	st, ok := s.remoteTick(ctx)
	if !ok {
		st = s.localTick()
	}

	s.mu.Lock()
	wasUp := s.state.IsTimeUp
	s.state = st
	s.mu.Unlock()
	if st.IsTimeUp && !wasUp {
		log.Printf("clock: session %s time up (elapsed=%ds)", s.sessionID, st.ElapsedSeconds)
	}

	select {
	case s.updates <- st:
	default:
	}
	return st
}

// remoteTick adopts the backend's elapsed/remaining verbatim and recomputes
// the flags with the shared thresholds.
func (s *Service) remoteTick(ctx context.Context) (TimerState, bool) {
	if s.source == nil {
		return TimerState{}, false
	}
	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()
	reading, err := s.source.SessionTime(tickCtx, s.sessionID)
	if err != nil {
		// Degrades silently; the local derivation covers this tick.
		return TimerState{}, false
	}
	return withFlags(reading.ElapsedSeconds, reading.RemainingSeconds), true
}

func (s *Service) localTick() TimerState {
	elapsed := int(s.now().Sub(s.start) / time.Second)
	return Derive(elapsed, int(s.duration/time.Second))
}

// State returns the last computed TimerState.
func (s *Service) State() TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates streams per-tick states. Slow consumers miss ticks rather than
// blocking the clock.
func (s *Service) Updates() <-chan TimerState { return s.updates }

// Stop halts ticking. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
}
