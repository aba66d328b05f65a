// Package jobs runs named background work and exposes its lifecycle as a
// small state machine.
package jobs

import "fmt"

// State is the lifecycle state of the single named job a Controller owns.
type State string

// State constants. Idle means no instance of the job exists.
const (
	StateIdle      State = "idle"
	StateEnqueued  State = "enqueued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a finished state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// WorkState is the executor's view of one work instance.
type WorkState int

// WorkState constants
const (
	WorkEnqueued WorkState = iota + 1
	WorkBlocked
	WorkRunning
	WorkSucceeded
	WorkFailed
	WorkCancelled
)

// AllWorkStates lists every declared executor state.
var AllWorkStates = []WorkState{WorkEnqueued, WorkBlocked, WorkRunning, WorkSucceeded, WorkFailed, WorkCancelled}

func (w WorkState) String() string {
	switch w {
	case WorkEnqueued:
		return "enqueued"
	case WorkBlocked:
		return "blocked"
	case WorkRunning:
		return "running"
	case WorkSucceeded:
		return "succeeded"
	case WorkFailed:
		return "failed"
	case WorkCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("WorkState(%d)", int(w))
}

// Finished reports whether the instance will never change state again.
func (w WorkState) Finished() bool {
	return w == WorkSucceeded || w == WorkFailed || w == WorkCancelled
}

// TranslateState maps an executor state to the job state. Every declared
// WorkState has a mapping; anything else is an error.
func TranslateState(w WorkState) (State, error) {
	switch w {
	case WorkEnqueued, WorkBlocked:
		return StateEnqueued, nil
	case WorkRunning:
		return StateRunning, nil
	case WorkSucceeded:
		return StateSucceeded, nil
	case WorkFailed:
		return StateFailed, nil
	case WorkCancelled:
		return StateCancelled, nil
	}
	return "", fmt.Errorf("unknown work state %s", w)
}

// ResolveState picks the state to report for a set of instances ordered from
// oldest to newest: the newest unfinished instance wins, then the newest
// finished one, then Idle.
func ResolveState(infos []WorkInfo) (State, error) {
	if info, ok := Latest(infos); ok {
		return TranslateState(info.State)
	}
	return StateIdle, nil
}

// Latest returns the instance ResolveState reports on.
func Latest(infos []WorkInfo) (WorkInfo, bool) {
	for i := len(infos) - 1; i >= 0; i-- {
		if !infos[i].State.Finished() {
			return infos[i], true
		}
	}
	if len(infos) > 0 {
		return infos[len(infos)-1], true
	}
	return WorkInfo{}, false
}
