package probe

import (
	"time"
)

// Timings control pacing and completion detection.
type Timings struct {
	// Pause after sending a line, by class.
	ProbeDelay time.Duration `yaml:"probe_delay"`
	DwellDelay time.Duration `yaml:"dwell_delay"`
	LineDelay  time.Duration `yaml:"line_delay"`

	// Debounce is how long the position must hold still to count as stable.
	Debounce time.Duration `yaml:"debounce"`

	// Epsilon is the largest Z change, in mm, that still counts as still.
	Epsilon float64 `yaml:"epsilon"`

	// Fallback is the ceiling on a run.
	Fallback time.Duration `yaml:"fallback"`

	// BestEffortRatio is the sent and acked fraction at which a run that hit
	// the fallback is still considered complete.
	BestEffortRatio float64 `yaml:"best_effort_ratio"`
}

func DefaultTimings() Timings {
	return Timings{
		ProbeDelay:      time.Second,
		DwellDelay:      500 * time.Millisecond,
		LineDelay:       50 * time.Millisecond,
		Debounce:        500 * time.Millisecond,
		Epsilon:         0.001,
		Fallback:        3 * time.Minute,
		BestEffortRatio: 0.8,
	}
}

func (t Timings) withDefaults() Timings {
	def := DefaultTimings()
	if t.ProbeDelay <= 0 {
		t.ProbeDelay = def.ProbeDelay
	}
	if t.DwellDelay <= 0 {
		t.DwellDelay = def.DwellDelay
	}
	if t.LineDelay <= 0 {
		t.LineDelay = def.LineDelay
	}
	if t.Debounce <= 0 {
		t.Debounce = def.Debounce
	}
	if t.Epsilon <= 0 {
		t.Epsilon = def.Epsilon
	}
	if t.Fallback <= 0 {
		t.Fallback = def.Fallback
	}
	if t.BestEffortRatio <= 0 {
		t.BestEffortRatio = def.BestEffortRatio
	}
	return t
}

// Delay returns the pause after sending a line of class c.
func (t Timings) Delay(c Class) time.Duration {
	switch c {
	case ClassProbe:
		return t.ProbeDelay
	case ClassDwell:
		return t.DwellDelay
	}
	return t.LineDelay
}

// dispatcher walks a list of lines one at a time. The session drives it
// from its event loop; the dispatcher itself knows nothing of acks.
type dispatcher struct {
	lines  []Line
	source string
	next   int

	// wire is the number of counted lines handed to the transport.
	wire int

	timer *time.Timer
}

func newDispatcher(lines []Line, source string) *dispatcher {
	return &dispatcher{lines: lines, source: source}
}

func (d *dispatcher) done() bool { return d.next >= len(d.lines) }

func (d *dispatcher) peek() Line { return d.lines[d.next] }

func (d *dispatcher) advance() { d.next++ }

func (d *dispatcher) stop() {
	if d != nil && d.timer != nil {
		d.timer.Stop()
	}
}
