package probe

import (
	"fmt"

	"github.com/mastercactapus/gprobe/machine"
)

// arbiter decides when a run is complete. Only the first resolution counts;
// the session enforces that by tearing down on the first terminal state.
type arbiter struct {
	// stable is set for methods that complete on a settled position only.
	stable bool

	dispatched bool
	ratio      float64
}

func (a *arbiter) ackComplete(t *tracker) bool {
	return !a.stable && a.dispatched && t.Acked() >= t.Total()
}

func (a *arbiter) idleComplete(t *tracker, from, to machine.Phase) bool {
	return !a.stable && a.dispatched &&
		from == machine.PhaseRun && to == machine.PhaseIdle &&
		t.Sent() >= t.Total()
}

// timeout resolves the fallback timer. A run that got far enough is
// complete on a best-effort basis, anything else is a Timeout.
func (a *arbiter) timeout(t *tracker) (bestEffort bool, err *Error) {
	sent, acked := t.ratios()
	msg := fmt.Sprintf("no completion signal: sent %d/%d (%.0f%%), acked %d/%d (%.0f%%)",
		t.Sent(), t.Total(), sent*100, t.Acked(), t.Total(), acked*100)
	if !a.stable && sent >= a.ratio && acked >= a.ratio {
		return true, nil
	}
	return false, &Error{Kind: KindTimeout, Message: msg, Line: t.pending()}
}
