package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
)

type fakeSource struct {
	reading *eval.TimeReading
	err     error
	calls   int
}

func (f *fakeSource) SessionTime(ctx context.Context, sessionID string) (*eval.TimeReading, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reading, nil
}

func TestTick_AdoptsRemoteReading(t *testing.T) {
	src := &fakeSource{reading: &eval.TimeReading{ElapsedSeconds: 100, RemainingSeconds: 1700}}
	s := NewService(src, "sess-1", 30*time.Minute)

	st := s.Tick(context.Background())
	if st.ElapsedSeconds != 100 || st.RemainingSeconds != 1700 {
		t.Fatalf("expected remote values adopted verbatim, got %+v", st)
	}
	if st.IsWarning || st.IsTimeUp {
		t.Fatalf("unexpected flags: %+v", st)
	}
}

func TestTick_RemoteFlagsRecomputedFromThresholds(t *testing.T) {
	// Backend values win but flags come from the shared thresholds.
	src := &fakeSource{reading: &eval.TimeReading{ElapsedSeconds: 1500, RemainingSeconds: 300}}
	s := NewService(src, "sess-1", 30*time.Minute)
	st := s.Tick(context.Background())
	if !st.IsWarning || st.IsTimeUp {
		t.Fatalf("expected warning at remaining=300, got %+v", st)
	}
}

func TestTick_LocalFallbackWhenUnreachable(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	s := NewService(src, "sess-1", 30*time.Minute)

	base := time.Now()
	fakeNow := base
	s.now = func() time.Time { return fakeNow }
	s.start = base

	fakeNow = base.Add(10 * time.Second)
	st := s.Tick(context.Background())
	if st.ElapsedSeconds != 10 || st.RemainingSeconds != 1790 {
		t.Fatalf("local fallback mismatch: %+v", st)
	}
	if src.calls != 1 {
		t.Fatalf("expected one remote attempt, got %d", src.calls)
	}
}

func TestTick_SumInvariantBothSources(t *testing.T) {
	const total = 1800
	src := &fakeSource{err: errors.New("down")}
	s := NewService(src, "sess-1", 30*time.Minute)
	base := time.Now()
	fakeNow := base
	s.now = func() time.Time { return fakeNow }
	s.start = base

	for i := 1; i <= 200; i++ {
		if i%2 == 0 {
			src.err = nil
			src.reading = &eval.TimeReading{ElapsedSeconds: i, RemainingSeconds: total - i}
		} else {
			src.err = errors.New("down")
		}
		fakeNow = base.Add(time.Duration(i) * time.Second)
		st := s.Tick(context.Background())
		sum := st.ElapsedSeconds + st.RemainingSeconds
		if st.RemainingSeconds > 0 && (sum < total-1 || sum > total+1) {
			t.Fatalf("tick %d: elapsed+remaining=%d, want %d±1", i, sum, total)
		}
	}
}

func TestTick_TimeUpOnLocalPathOnly(t *testing.T) {
	// Configured 30 minutes, remote unreachable throughout: after 1500
	// simulated seconds... still running; after 1800 the flag flips.
	src := &fakeSource{err: errors.New("unreachable")}
	s := NewService(src, "sess-1", 25*time.Minute)
	base := time.Now()
	fakeNow := base
	s.now = func() time.Time { return fakeNow }
	s.start = base

	fakeNow = base.Add(1499 * time.Second)
	st := s.Tick(context.Background())
	if st.IsTimeUp {
		t.Fatalf("time up too early: %+v", st)
	}
	fakeNow = base.Add(1500 * time.Second)
	st = s.Tick(context.Background())
	if !st.IsTimeUp {
		t.Fatalf("expected time up after 1500s of a 25m session, got %+v", st)
	}
	if st.RemainingSeconds != 0 {
		t.Fatalf("remaining must clamp at 0, got %d", st.RemainingSeconds)
	}
}

func TestWarningWindowEdges(t *testing.T) {
	cases := []struct {
		remaining int
		warning   bool
		timeUp    bool
	}{
		{301, false, false},
		{300, true, false},
		{1, true, false},
		{0, false, true},
	}
	for _, tc := range cases {
		st := withFlags(0, tc.remaining)
		if st.IsWarning != tc.warning || st.IsTimeUp != tc.timeUp {
			t.Fatalf("remaining=%d: got warning=%v timeUp=%v", tc.remaining, st.IsWarning, st.IsTimeUp)
		}
	}
}

func TestUpdates_DropWhenSlow(t *testing.T) {
	src := &fakeSource{reading: &eval.TimeReading{ElapsedSeconds: 1, RemainingSeconds: 1799}}
	s := NewService(src, "sess-1", 30*time.Minute)
	// Never drain updates; ticking must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Tick(context.Background())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("ticking blocked on a slow consumer")
	}
}
