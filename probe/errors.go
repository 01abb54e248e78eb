package probe

import (
	"errors"
)

// Kind classifies a terminal session failure.
type Kind string

const (
	KindProbeContact    Kind = "ProbeContactError"
	KindControllerFault Kind = "ControllerFault"
	KindTransportLost   Kind = "TransportLost"
	KindTimeout         Kind = "Timeout"
	KindConfiguration   Kind = "ConfigurationError"
	KindStorage         Kind = "StorageError"
	KindCanceled        Kind = "Canceled"
)

var (
	// ErrSessionActive is returned when starting a session while another one
	// is active on the same connection.
	ErrSessionActive = errors.New("probe: a session is already active")

	// ErrSessionClosed is returned by commands sent to a finished session.
	ErrSessionClosed = errors.New("probe: session closed")

	// ErrCheckPending is returned when the probe continuity check has not passed yet.
	ErrCheckPending = errors.New("probe: continuity check not passed")

	// ErrNavigationUnconfirmed is returned when running a bit setter before
	// navigation to the sensor was confirmed.
	ErrNavigationUnconfirmed = errors.New("probe: navigation not confirmed")

	// ErrNotAllowed is returned for commands that are invalid in the current state.
	ErrNotAllowed = errors.New("probe: not allowed in current state")
)

// Error is the terminal failure of a session.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// Line is the offending command line, when known.
	Line string `json:"line,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	s := string(e.Kind) + ": " + e.Message
	if e.Line != "" {
		s += " (line: " + e.Line + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
