package job

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{name: "pending to synthesizing", from: StatePending, to: StateSynthesizing, want: true},
		{name: "pending to failed", from: StatePending, to: StateFailed, want: true},
		{name: "pending cannot skip to aligning", from: StatePending, to: StateAligning, want: false},
		{name: "synthesizing to mastering", from: StateSynthesizing, to: StateMastering, want: true},
		{name: "synthesizing straight to aligning", from: StateSynthesizing, to: StateAligning, want: true},
		{name: "mastering to aligning", from: StateMastering, to: StateAligning, want: true},
		{name: "aligning to ready", from: StateAligning, to: StateReady, want: true},
		{name: "aligning to failed", from: StateAligning, to: StateFailed, want: true},
		{name: "ready is terminal", from: StateReady, to: StateSynthesizing, want: false},
		{name: "ready cannot fail", from: StateReady, to: StateFailed, want: false},
		{name: "failed is terminal", from: StateFailed, to: StatePending, want: false},
		{name: "no backwards step", from: StateAligning, to: StateSynthesizing, want: false},
		{name: "unknown state has no edges", from: State("BOGUS"), to: StateReady, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []State{StatePending, StateSynthesizing, StateMastering, StateAligning} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
	for _, s := range []State{StateReady, StateFailed} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
}
