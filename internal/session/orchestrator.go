package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/capture"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/clock"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/eval"
	"github.com/saurabhg90055-exp/ProCoach-AI-sub000/internal/speech"
)

// Evaluator is the remote evaluation surface the orchestrator drives.
// *eval.Client satisfies it.
type Evaluator interface {
	StartSession(ctx context.Context, cfg eval.SessionConfig) (*eval.StartResult, error)
	SubmitAnswer(ctx context.Context, sessionID string, audio []byte, filename string) (*eval.Reply, error)
	EndSession(ctx context.Context, sessionID string) (*eval.Summary, error)
}

// Microphone is the capture pipeline surface. *capture.Pipeline satisfies it.
type Microphone interface {
	Begin(ctx context.Context) (<-chan float64, error)
	End() []byte
	Active() bool
}

// Narrator prepares and atomically reveals spoken replies.
// *speech.Synchronizer satisfies it.
type Narrator interface {
	Prepare(ctx context.Context, text string) (*speech.Reveal, error)
	Commit(r *speech.Reveal, commitText func())
	CancelCurrent()
}

// Archiver stores finished answer recordings and session summaries. Optional.
type Archiver interface {
	SaveRecording(ctx context.Context, sessionID string, question int, wav []byte) error
	SaveSummary(ctx context.Context, sessionID string, summary eval.Summary) error
}

// Orchestrator sequences one interview session: it alternates Listening,
// Transcribing and Speaking, owns the conversation log and score record, and
// is the only component that mutates them. Collaborators return data; the
// orchestrator commits it.
//
// Every asynchronous completion carries the epoch it was launched under; a
// completion whose epoch no longer matches is discarded, so nothing arriving
// after Ending (or after a superseding command) can mutate torn-down state.
type Orchestrator struct {
	evaluator  Evaluator
	mic        Microphone
	narrator   Narrator
	timeSource clock.TimeSource
	store      Archiver
	now        func() time.Time

	mu            sync.Mutex
	phase         Phase
	cfg           Config
	sessionID     string
	topic         string
	difficulty    string
	createdAt     time.Time
	turns         []Turn
	scores        ScoreRecord
	questionIndex int
	trend         string
	timer         clock.TimerState
	lastErr       error
	summary       *eval.Summary
	epoch         int
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	clk           *clock.Service
	clockCancel   context.CancelFunc

	loud     chan float64
	watchers map[int]chan Snapshot
	nextID   int
}

func New(evaluator Evaluator, mic Microphone, narrator Narrator, timeSource clock.TimeSource) *Orchestrator {
	return &Orchestrator{
		evaluator:  evaluator,
		mic:        mic,
		narrator:   narrator,
		timeSource: timeSource,
		now:        time.Now,
		phase:      PhaseIdle,
		loud:       make(chan float64, 16),
		watchers:   make(map[int]chan Snapshot),
	}
}

// WithArchiver enables recording archival.
func (o *Orchestrator) WithArchiver(a Archiver) *Orchestrator {
	o.store = a
	return o
}

// Start opens a session: Idle -> Starting, then Speaking once the opening
// prompt's narration is ready. The remote exchange runs asynchronously;
// failures surface in the snapshot and return the phase to Idle.
func (o *Orchestrator) Start(cfg Config) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return fmt.Errorf("cannot start a session in phase %s", o.phase)
	}
	o.transitionLocked(PhaseStarting)
	o.cfg = cfg
	o.lastErr = nil
	ctx, cancel := context.WithCancel(context.Background())
	o.sessionCtx, o.sessionCancel = ctx, cancel
	e := o.epoch
	o.notifyLocked()
	o.mu.Unlock()

	go func() {
		res, err := o.evaluator.StartSession(ctx, eval.SessionConfig{
			Topic:           cfg.Topic,
			CompanyStyle:    cfg.CompanyStyle,
			Difficulty:      cfg.Difficulty,
			DurationMinutes: int(cfg.Duration / time.Minute),
			Mode:            cfg.Mode,
			EnableTTS:       cfg.EnableTTS,
			ResumeText:      cfg.ResumeText,
			JobDescription:  cfg.JobDescription,
		})
		o.mu.Lock()
		if o.epoch != e || o.phase != PhaseStarting {
			o.mu.Unlock()
			return
		}
		if err != nil {
			log.Printf("session: start failed: %v", err)
			o.lastErr = err
			o.transitionLocked(PhaseIdle)
			o.notifyLocked()
			o.mu.Unlock()
			cancel()
			return
		}
		o.sessionID = res.SessionID
		o.createdAt = o.now()
		o.topic = res.Topic
		o.difficulty = res.Difficulty
		if res.DurationMinutes > 0 {
			o.cfg.Duration = time.Duration(res.DurationMinutes) * time.Minute
		}
		o.startClockLocked()
		o.mu.Unlock()
		o.speak(ctx, e, res.Opening)
	}()
	return nil
}

// StopRecording closes the live capture and submits the answer:
// Listening -> Transcribing. Outside Listening it is a no-op, which makes
// duplicate stop triggers harmless.
func (o *Orchestrator) StopRecording() {
	o.mu.Lock()
	if o.phase != PhaseListening {
		o.mu.Unlock()
		return
	}
	payload := o.mic.End()
	if len(payload) == 0 {
		// User no-op: nothing was said. Re-arm the microphone and stay put.
		o.lastErr = capture.ErrNoAudioCaptured
		o.acquireMicLocked(o.sessionCtx)
		o.notifyLocked()
		o.mu.Unlock()
		return
	}
	o.transitionLocked(PhaseTranscribing)
	o.lastErr = nil
	e := o.epoch
	ctx := o.sessionCtx
	id := o.sessionID
	q := o.questionIndex
	o.notifyLocked()
	o.mu.Unlock()

	if o.store != nil {
		go func() {
			if err := o.store.SaveRecording(ctx, id, q, payload); err != nil {
				log.Printf("session: archive recording: %v", err)
			}
		}()
	}

	go func() {
		reply, err := o.evaluator.SubmitAnswer(ctx, id, payload, fmt.Sprintf("answer_%03d.wav", q))
		o.mu.Lock()
		if o.epoch != e || o.phase != PhaseTranscribing {
			// Late response after teardown or supersession: discard.
			o.mu.Unlock()
			return
		}
		if err != nil {
			// Recoverable: back to Listening, question index untouched,
			// the user may simply answer again.
			log.Printf("session: evaluation failed: %v", err)
			o.lastErr = err
			o.enterListeningLocked(ctx)
			o.notifyLocked()
			o.mu.Unlock()
			return
		}
		turn := Turn{Role: RoleCandidate, Text: reply.Transcript}
		if reply.Score != nil {
			sc := *reply.Score
			turn.Score = &sc
			o.scores.Append(sc)
		}
		o.turns = append(o.turns, turn)
		if reply.Trend != "" {
			o.trend = reply.Trend
		}
		o.notifyLocked()
		o.mu.Unlock()
		o.speak(ctx, e, reply.Prompt)
	}()
}

// End terminates the session from any live phase: capture is torn down and
// pending narration cancelled synchronously, in-flight completions are
// invalidated, and the final summary is fetched (or assembled locally).
func (o *Orchestrator) End() error {
	o.mu.Lock()
	if !canTransition(o.phase, PhaseEnding) {
		phase := o.phase
		o.mu.Unlock()
		return fmt.Errorf("cannot end a session in phase %s", phase)
	}
	o.transitionLocked(PhaseEnding)
	o.epoch++
	e := o.epoch
	_ = o.mic.End() // discard any in-progress recording
	o.narrator.CancelCurrent()
	cancel := o.sessionCancel
	id := o.sessionID
	o.notifyLocked()
	o.mu.Unlock()

	go func() {
		// Fresh context: the session context is being cancelled right now.
		ctx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		sum, err := o.evaluator.EndSession(ctx, id)
		o.mu.Lock()
		if o.epoch != e || o.phase != PhaseEnding {
			o.mu.Unlock()
			return
		}
		if err != nil {
			log.Printf("session: end failed, assembling local summary: %v", err)
			o.lastErr = err
			local := o.localSummaryLocked()
			o.summary = &local
		} else {
			o.summary = sum
		}
		o.transitionLocked(PhaseSummary)
		var archived *eval.Summary
		if o.store != nil && o.summary != nil {
			s := *o.summary
			archived = &s
		}
		o.notifyLocked()
		o.mu.Unlock()

		if archived != nil {
			actx, adone := context.WithTimeout(context.Background(), 15*time.Second)
			defer adone()
			if aerr := o.store.SaveSummary(actx, id, *archived); aerr != nil {
				log.Printf("session: archive summary: %v", aerr)
			}
		}
	}()
	if cancel != nil {
		cancel()
	}
	return nil
}

// RetryCapture re-attempts microphone acquisition after a device failure.
func (o *Orchestrator) RetryCapture() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseListening || o.mic.Active() {
		return
	}
	o.lastErr = nil
	o.acquireMicLocked(o.sessionCtx)
	o.notifyLocked()
}

// Reset returns a finished session to Idle so a new one can start.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseSummary {
		return fmt.Errorf("cannot reset in phase %s", o.phase)
	}
	o.transitionLocked(PhaseIdle)
	o.epoch++
	o.sessionID = ""
	o.topic = ""
	o.difficulty = ""
	o.turns = nil
	o.scores = ScoreRecord{}
	o.questionIndex = 0
	o.trend = ""
	o.timer = clock.TimerState{}
	o.lastErr = nil
	o.summary = nil
	o.notifyLocked()
	return nil
}

// speak fetches the reply's narration and then reveals text and audio in one
// atomic step. Runs outside the lock; the epoch guards staleness.
func (o *Orchestrator) speak(ctx context.Context, e int, text string) {
	reveal, err := o.narrator.Prepare(ctx, text)
	o.mu.Lock()
	stale := o.epoch != e || (o.phase != PhaseStarting && o.phase != PhaseTranscribing)
	if stale || err != nil {
		o.mu.Unlock()
		if reveal != nil && reveal.Audio != nil {
			reveal.Audio.Stop()
		}
		if err != nil && ctx.Err() == nil {
			log.Printf("session: narration prepare: %v", err)
		}
		return
	}

	// Atomic reveal: the interviewer turn and its narration become
	// observable together.
	o.narrator.Commit(reveal, func() {
		o.turns = append(o.turns, Turn{Role: RoleInterviewer, Text: text})
		o.questionIndex++
	})

	if reveal.Audio == nil {
		// Narration disabled or unavailable: straight to Listening.
		o.enterListeningLocked(ctx)
		o.notifyLocked()
		o.mu.Unlock()
		return
	}

	o.transitionLocked(PhaseSpeaking)
	o.notifyLocked()
	o.mu.Unlock()

	go func() {
		select {
		case <-reveal.Audio.Done():
		case <-ctx.Done():
			return
		}
		// Completion and failure look the same here: either way the user
		// must not stay stranded in Speaking.
		o.mu.Lock()
		if o.epoch == e && o.phase == PhaseSpeaking {
			o.enterListeningLocked(ctx)
			o.notifyLocked()
		}
		o.mu.Unlock()
	}()
}

func (o *Orchestrator) enterListeningLocked(ctx context.Context) {
	o.transitionLocked(PhaseListening)
	o.acquireMicLocked(ctx)
}

func (o *Orchestrator) acquireMicLocked(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	loud, err := o.mic.Begin(ctx)
	if err != nil {
		// Recording attempt aborted; the session stays in Listening and
		// the user may retry once the device is back.
		log.Printf("session: microphone: %v", err)
		o.lastErr = err
		return
	}
	go o.forwardLoudness(loud)
}

func (o *Orchestrator) forwardLoudness(ch <-chan float64) {
	for v := range ch {
		select {
		case o.loud <- v:
		default:
		}
	}
}

// startClockLocked starts the per-second timer on its own context. The clock
// outlives the session context: it keeps ticking through Ending and stops
// only when the phase leaves the live set.
func (o *Orchestrator) startClockLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	o.clockCancel = cancel
	o.clk = clock.NewService(o.timeSource, o.sessionID, o.cfg.Duration)
	clk := o.clk
	go clk.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-clk.Updates():
				o.mu.Lock()
				if o.clk == clk {
					o.timer = st
					o.notifyLocked()
				}
				o.mu.Unlock()
			}
		}
	}()
}

func (o *Orchestrator) stopClockLocked() {
	if o.clk != nil {
		o.clk.Stop()
		o.clk = nil
	}
	if o.clockCancel != nil {
		o.clockCancel()
		o.clockCancel = nil
	}
}

func (o *Orchestrator) transitionLocked(to Phase) {
	if !canTransition(o.phase, to) {
		// Transition table violations are programming errors; log loudly
		// but do not corrupt state.
		log.Printf("session: refused transition %s -> %s", o.phase, to)
		return
	}
	o.phase = to
	if !to.Active() {
		o.stopClockLocked()
	}
}

// Snapshot returns the presentation-facing view of the session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	turns := make([]Turn, len(o.turns))
	copy(turns, o.turns)
	trend := o.trend
	if trend == "" {
		trend = o.scores.Trend()
	}
	var lastErr string
	if o.lastErr != nil {
		lastErr = o.lastErr.Error()
	}
	return Snapshot{
		SessionID:     o.sessionID,
		Phase:         o.phase,
		Topic:         o.topic,
		Difficulty:    o.difficulty,
		QuestionIndex: o.questionIndex,
		Turns:         turns,
		Scores:        o.scores.Values(),
		AverageScore:  o.scores.Average(),
		Trend:         trend,
		Timer:         o.timer,
		Capturing:     o.mic.Active(),
		LastError:     lastErr,
		Summary:       o.summary,
	}
}

// Loudness streams normalized microphone levels for visualization. Samples
// are dropped when the consumer lags.
func (o *Orchestrator) Loudness() <-chan float64 { return o.loud }

// Subscribe registers a snapshot watcher. Snapshots are dropped rather than
// queued when the watcher is slow.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	ch := make(chan Snapshot, 8)
	o.watchers[id] = ch
	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.watchers, id)
	}
}

func (o *Orchestrator) notifyLocked() {
	snap := o.snapshotLocked()
	for _, ch := range o.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}
