package machine

import (
	"strings"
	"time"

	"github.com/mastercactapus/gprobe/coord"
)

// Phase is the controller run state as reported in status reports.
type Phase string

const (
	PhaseUnknown Phase = ""
	PhaseIdle    Phase = "Idle"
	PhaseRun     Phase = "Run"
	PhaseHold    Phase = "Hold"
	PhaseJog     Phase = "Jog"
	PhaseAlarm   Phase = "Alarm"
	PhaseDoor    Phase = "Door"
	PhaseCheck   Phase = "Check"
	PhaseHome    Phase = "Home"
	PhaseSleep   Phase = "Sleep"
)

// ParsePhase converts a status report state (e.g. `Hold:0`) into a Phase.
// Sub-states are dropped.
func ParsePhase(s string) Phase {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return Phase(s)
}

// Active returns true while the controller is executing motion.
func (p Phase) Active() bool {
	switch p {
	case PhaseRun, PhaseJog, PhaseHome:
		return true
	}
	return false
}

// State is one status report.
type State struct {
	Phase Phase
	MPos  coord.Point
	WCO   coord.Point

	// ProbePin is set while the probe input is triggered.
	ProbePin bool

	Time time.Time
}

// WPos returns the work position.
func (s State) WPos() coord.Point {
	return s.MPos.Sub(s.WCO)
}
