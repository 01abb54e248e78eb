package probe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/gprobe/machine"
)

// LineKind is the classification of an inbound line.
type LineKind int

const (
	LineOther LineKind = iota
	LineOK
	LineError
	LineAlarm
)

func (k LineKind) String() string {
	switch k {
	case LineOK:
		return "ok"
	case LineError:
		return "error"
	case LineAlarm:
		return "alarm"
	}
	return "other"
}

// Classify returns the kind of an inbound line and, for errors and alarms, its code.
func Classify(line string) (LineKind, int) {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	switch {
	case lower == "ok":
		return LineOK, 0
	case strings.HasPrefix(lower, "error:"):
		code, _ := strconv.Atoi(strings.TrimSpace(line[len("error:"):]))
		return LineError, code
	case strings.HasPrefix(lower, "alarm:"):
		code, _ := strconv.Atoi(strings.TrimSpace(line[len("alarm:"):]))
		return LineAlarm, code
	}
	return LineOther, 0
}

// monitorHistory is the number of inbound lines searched for an echo.
const monitorHistory = 5

// monitor turns controller output into terminal failures.
type monitor struct {
	recent []string
}

func (m *monitor) remember(line string) {
	m.recent = append(m.recent, line)
	if len(m.recent) > monitorHistory {
		m.recent = m.recent[len(m.recent)-monitorHistory:]
	}
}

// echo returns the most recent echoed line, if any.
func (m *monitor) echo() string {
	for i := len(m.recent) - 1; i >= 0; i-- {
		if strings.HasPrefix(m.recent[i], "[echo:") {
			return strings.TrimSuffix(strings.TrimPrefix(m.recent[i], "[echo:"), "]")
		}
	}
	return ""
}

// lineReceived returns a failure for error, alarm and reset lines.
func (m *monitor) lineReceived(line string) *Error {
	line = strings.TrimSpace(line)
	defer m.remember(line)

	kind, code := Classify(line)
	switch kind {
	case LineError:
		return &Error{
			Kind:    KindControllerFault,
			Message: fmt.Sprintf("error %d: %s", code, ErrorText(code)),
			Line:    m.echo(),
		}
	case LineAlarm:
		k := KindControllerFault
		if code == 4 || code == 5 {
			k = KindProbeContact
		}
		return &Error{
			Kind:    k,
			Message: fmt.Sprintf("alarm %d: %s", code, AlarmText(code)),
			Line:    m.echo(),
		}
	}
	if strings.HasPrefix(line, "Grbl ") {
		return &Error{Kind: KindControllerFault, Message: "controller reset (" + line + ")"}
	}
	return nil
}

// phaseChanged returns a failure when the controller enters the alarm state.
func (m *monitor) phaseChanged(to machine.Phase) *Error {
	if to != machine.PhaseAlarm {
		return nil
	}
	return &Error{Kind: KindControllerFault, Message: "controller entered alarm state"}
}

func (m *monitor) disconnected(err error) *Error {
	return &Error{Kind: KindTransportLost, Message: "connection lost", Err: err}
}
