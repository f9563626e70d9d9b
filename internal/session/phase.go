package session

// Phase is the orchestrator's state-machine state. All transition logic is
// centralized here; no component keeps its own phase flags.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseStarting     Phase = "starting"
	PhaseListening    Phase = "listening"
	PhaseTranscribing Phase = "transcribing"
	PhaseSpeaking     Phase = "speaking"
	PhaseEnding       Phase = "ending"
	PhaseSummary      Phase = "summary"
)

// canTransition is the full transition table. Summary is terminal until an
// explicit reset back to Idle.
func canTransition(from, to Phase) bool {
	if to == PhaseEnding {
		return from != PhaseIdle && from != PhaseEnding && from != PhaseSummary
	}
	switch from {
	case PhaseIdle:
		return to == PhaseStarting
	case PhaseStarting:
		return to == PhaseSpeaking || to == PhaseListening || to == PhaseIdle
	case PhaseListening:
		return to == PhaseTranscribing
	case PhaseTranscribing:
		return to == PhaseSpeaking || to == PhaseListening
	case PhaseSpeaking:
		return to == PhaseListening
	case PhaseEnding:
		return to == PhaseSummary
	case PhaseSummary:
		return to == PhaseIdle
	}
	return false
}

// Active reports whether the session clock should be ticking in this phase.
func (p Phase) Active() bool {
	return p != PhaseIdle && p != PhaseSummary
}
