package probe

import (
	"fmt"
	"strings"

	"github.com/mastercactapus/gprobe/gcode"
	"github.com/mastercactapus/gprobe/vm"
)

// Class is the semantic class of a line; it selects the pause after sending it.
type Class string

const (
	ClassMovement   Class = "movement"
	ClassProbe      Class = "probe"
	ClassDwell      Class = "dwell"
	ClassAssignment Class = "assignment"
	ClassMode       Class = "mode"
)

// Stage groups the lines of a sequence.
type Stage string

const (
	// StageNavigate lines move to the probing location. They are sent when
	// the operator confirms navigation, not as part of the run.
	StageNavigate Stage = "navigate"
	StageProbe    Stage = "probe"
	StageZero     Stage = "zero"
)

// Line is one command of a sequence.
type Line struct {
	Text  string `json:"text"`
	Class Class  `json:"class"`
	Stage Stage  `json:"stage"`
}

// Local returns true for macro lines that are evaluated by the session
// instead of being sent.
func (l Line) Local() bool { return vm.Classify(l.Text) != vm.DirectiveNone }

// counted returns true if the line is expected to be sent and acknowledged.
func (l Line) counted() bool { return !l.Local() && !IsQuery(l.Text) }

// countLines returns the number of lines a run expects to send.
func countLines(lines []Line) int {
	var n int
	for _, l := range lines {
		if l.counted() {
			n++
		}
	}
	return n
}

// Filter returns the lines of the given stages, in order.
func Filter(lines []Line, stages ...Stage) []Line {
	var res []Line
	for _, l := range lines {
		for _, s := range stages {
			if l.Stage == s {
				res = append(res, l)
				break
			}
		}
	}
	return res
}

func g(n float64) gcode.Word            { return gcode.Word{W: 'G', Arg: n} }
func word(w byte, v float64) gcode.Word { return gcode.Word{W: w, Arg: v} }

type builder struct {
	stage Stage
	lines []Line
}

func (b *builder) add(c Class, words ...gcode.Word) {
	b.addText(c, gcode.Block(words).String())
}

func (b *builder) addText(c Class, text string) {
	b.lines = append(b.lines, Line{Text: text, Class: c, Stage: b.stage})
}

func configErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func checkProbe(distance, feedrate float64) error {
	if distance <= 0 {
		return configErr("probe distance must be positive, got %g", distance)
	}
	if feedrate <= 0 {
		return configErr("probe feedrate must be positive, got %g", feedrate)
	}
	return nil
}

// Build returns the command lines of m. The result depends only on its arguments.
func Build(m Method, ctx Context) ([]Line, error) {
	p, err := ctx.WCSIndex()
	if err != nil {
		return nil, err
	}
	pw := word('P', float64(p))

	switch m := m.(type) {
	case Manual:
		return buildManual(m, pw)
	case TouchPlate:
		return buildTouchPlate(m, ctx, pw)
	case BitSetter:
		return buildBitSetter(m, ctx)
	case BitZero:
		return buildBitZero(m, ctx, pw)
	case Custom:
		return buildCustom(m)
	case nil:
		return nil, configErr("no method")
	default:
		return nil, configErr("unsupported method %T", m)
	}
}

func buildManual(m Manual, p gcode.Word) ([]Line, error) {
	if len(m.Axes) == 0 {
		return nil, configErr("no axes to zero")
	}
	blk := gcode.Block{g(10), word('L', 20), p}
	for _, a := range m.Axes {
		if !a.valid() {
			return nil, configErr("invalid axis %q", a)
		}
		blk = append(blk, word(a[0], 0))
	}
	b := builder{stage: StageZero}
	b.add(ClassMode, blk...)
	return b.lines, nil
}

func buildTouchPlate(m TouchPlate, ctx Context, p gcode.Word) ([]Line, error) {
	if err := checkProbe(m.ProbeDistance, m.ProbeFeedrate); err != nil {
		return nil, err
	}
	if m.PlateThickness < 0 {
		return nil, configErr("plate thickness must not be negative")
	}

	b := builder{stage: StageProbe}
	b.add(ClassMode, g(91))
	b.add(ClassProbe, g(38.2), word('Z', -m.ProbeDistance), word('F', m.ProbeFeedrate))
	b.add(ClassMovement, g(0), word('Z', ctx.RetractDistance))
	// second, slower touch
	b.add(ClassProbe, g(38.2), word('Z', -(ctx.RetractDistance + 1)), word('F', m.ProbeFeedrate/2))

	b.stage = StageZero
	b.add(ClassDwell, g(4), word('P', ctx.DwellSeconds))
	b.add(ClassMode, g(10), word('L', 20), p, word('Z', m.PlateThickness))
	b.add(ClassMovement, g(0), word('Z', ctx.RetractDistance))
	b.add(ClassMode, g(90))
	return b.lines, nil
}

func buildBitSetter(m BitSetter, ctx Context) ([]Line, error) {
	if err := checkProbe(m.ProbeDistance, m.ProbeFeedrate); err != nil {
		return nil, err
	}

	b := builder{stage: StageNavigate}
	b.add(ClassMovement, g(53), g(0), word('Z', ctx.SafeHeight))
	b.add(ClassMovement, g(53), g(0), word('X', m.Position.X), word('Y', m.Position.Y))
	b.add(ClassMovement, g(53), g(0), word('Z', m.Position.Z))

	b.stage = StageProbe
	b.add(ClassMode, g(91))
	b.add(ClassProbe, g(38.2), word('Z', -m.ProbeDistance), word('F', m.ProbeFeedrate))
	b.add(ClassMode, g(90))
	return b.lines, nil
}

func buildBitZero(m BitZero, ctx Context, p gcode.Word) ([]Line, error) {
	if err := checkProbe(m.ProbeDistance, m.ProbeFeedrate); err != nil {
		return nil, err
	}

	b := builder{stage: StageProbe}
	f := word('F', m.ProbeFeedrate)
	center := func(axis byte) {
		a := string(axis)
		b.add(ClassMode, g(91))
		b.add(ClassProbe, g(38.2), word(axis, -m.ProbeDistance), f)
		b.addText(ClassAssignment, "%"+a+"_MIN = pos"+strings.ToLower(a))
		b.add(ClassMovement, g(0), word(axis, ctx.Backoff))
		b.add(ClassProbe, g(38.2), word(axis, 2*m.ProbeDistance), f)
		b.addText(ClassAssignment, "%"+a+"_MAX = pos"+strings.ToLower(a))
		b.addText(ClassMovement, fmt.Sprintf("G90 G0 %s[(%s_MIN + %s_MAX) / 2]", a, a, a))
	}
	center('X')
	center('Y')

	b.stage = StageZero
	b.add(ClassMode, g(10), word('L', 20), p, word('X', 0), word('Y', 0))
	b.add(ClassMovement, g(91), g(0), word('Z', m.ProbeThickness+ctx.RetractDistance))
	b.add(ClassMovement, g(0), word('X', ctx.SurfaceOffset))
	b.add(ClassProbe, g(38.2), word('Z', -m.ProbeDistance), f)
	b.add(ClassDwell, g(4), word('P', ctx.DwellSeconds))
	b.add(ClassMode, g(10), word('L', 20), p, word('Z', m.ProbeThickness))
	b.add(ClassMovement, g(0), word('Z', ctx.RetractDistance))
	b.add(ClassMode, g(90))
	return b.lines, nil
}

func buildCustom(m Custom) ([]Line, error) {
	for _, a := range m.Axes {
		if !a.valid() {
			return nil, configErr("invalid axis %q", a)
		}
	}

	b := builder{stage: StageProbe}
	for _, raw := range strings.Split(m.GCode, "\n") {
		text := strings.TrimSpace(raw)
		switch vm.Classify(text) {
		case vm.DirectiveAssign:
			text = strings.TrimSpace(strings.SplitN(text, ";", 2)[0])
			b.addText(ClassAssignment, text)
		case vm.DirectiveWait:
			b.addText(ClassDwell, text)
		case vm.DirectiveMsg:
			b.addText(ClassMode, text)
		default:
			if gcode.StripComments(text) == "" {
				continue
			}
			b.addText(classify(text), text)
		}
	}
	if len(b.lines) == 0 {
		return nil, configErr("custom G-code is empty")
	}
	return b.lines, nil
}

// classify determines the class of a user supplied line.
func classify(text string) Class {
	if sys := strings.ToUpper(strings.TrimSpace(text)); strings.HasPrefix(sys, "$") {
		// homing and jogging move the machine, every other system command does not
		if sys == "$H" || strings.HasPrefix(sys, "$J=") {
			return ClassMovement
		}
		return ClassMode
	}
	blk, err := gcode.ParseLine(text)
	if err != nil {
		return ClassMovement
	}
	for _, w := range blk {
		if w.IsProbe() {
			return ClassProbe
		}
	}
	for _, w := range blk {
		if w.IsDwell() {
			return ClassDwell
		}
	}
	for _, w := range blk {
		if w.IsOffset() {
			return ClassMode
		}
	}
	if blk.HasAxis() || blk.HasModalGroup(gcode.ModalGroupMotion) {
		return ClassMovement
	}
	return ClassMode
}
