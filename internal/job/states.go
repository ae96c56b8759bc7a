// Package job owns the lifecycle of one script-to-audio request: the state
// machine, the persisted per-job records, and the orchestrator that drives a
// job to a terminal state.
package job

// State is the canonical lifecycle stage of a job.
type State string

const (
	// StatePending: created, not yet picked up.
	StatePending State = "PENDING"
	// StateSynthesizing: calling the external TTS capability.
	StateSynthesizing State = "SYNTHESIZING"
	// StateMastering: reserved post-processing checkpoint between synthesis
	// and alignment; the current pipeline passes through it implicitly.
	StateMastering State = "MASTERING"
	// StateAligning: computing word-level timings on the final audio.
	StateAligning State = "ALIGNING"
	// StateReady: audio and timings available. Terminal.
	StateReady State = "READY"
	// StateFailed: terminal failure; the error field carries the cause.
	StateFailed State = "FAILED"
)

var allowed = map[State][]State{
	StatePending:      {StateSynthesizing, StateFailed},
	StateSynthesizing: {StateMastering, StateAligning, StateFailed},
	StateMastering:    {StateAligning, StateFailed},
	StateAligning:     {StateReady, StateFailed},
	StateReady:        {},
	StateFailed:       {},
}

// IsTerminal reports whether a state can never be left.
func IsTerminal(s State) bool {
	return s == StateReady || s == StateFailed
}

// CanTransition validates one step of the lifecycle graph.
func CanTransition(from, to State) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}
