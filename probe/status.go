package probe

import (
	"time"
)

// State is the session status.
type State string

const (
	StateIdle       State = "idle"
	StateNavigating State = "navigating"
	StateVerifying  State = "verifying"
	StateProbing    State = "probing"
	StateCapturing  State = "capturing"
	StateStoring    State = "storing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Terminal returns true for complete and error.
func (s State) Terminal() bool { return s == StateComplete || s == StateError }

// navigable returns true while the operator may move between steps.
func (s State) navigable() bool {
	switch s {
	case StateIdle, StateVerifying, StateNavigating:
		return true
	}
	return false
}

// stateFor returns the status of a session waiting at step kind k.
func stateFor(k StepKind) State {
	switch k {
	case StepVerify:
		return StateVerifying
	case StepNavigate:
		return StateNavigating
	}
	return StateIdle
}

// Result is the stored outcome of a bit setter run.
type Result struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`

	// Previous and Delta are set when the value superseded an earlier one.
	Previous *float64 `json:"previous,omitempty"`
	Delta    *float64 `json:"delta,omitempty"`
}

// Status is a snapshot of a session.
type Status struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	State  State  `json:"status"`

	Step       int      `json:"step"`
	TotalSteps int      `json:"totalSteps"`
	StepKind   StepKind `json:"stepKind"`

	Total int `json:"total"`
	Sent  int `json:"sent"`
	Acked int `json:"acked"`

	CheckPassed         bool `json:"checkPassed"`
	NavigationConfirmed bool `json:"navigationConfirmed"`

	// BestEffort is set when completion was declared by the fallback timer.
	BestEffort bool `json:"bestEffort,omitempty"`

	Result *Result `json:"result,omitempty"`
	Error  *Error  `json:"error,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}
