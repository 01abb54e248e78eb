package probe

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gprobe/coord"
)

func texts(lines []Line) []string {
	res := make([]string, len(lines))
	for i, l := range lines {
		res[i] = l.Text
	}
	return res
}

func TestSteps(t *testing.T) {
	check := func(m Method, exp ...StepKind) {
		t.Helper()
		assert.Equal(t, exp, Steps(m))
		assert.Equal(t, len(exp), TotalSteps(m))
		// stable across calls
		assert.Equal(t, TotalSteps(m), TotalSteps(m))
	}

	check(Manual{Axes: []Axis{AxisX, AxisY, AxisZ}}, StepPosition, StepZero, StepZero, StepZero)
	check(Manual{Axes: []Axis{AxisZ}}, StepPosition, StepZero)
	check(TouchPlate{}, StepPrepare, StepPosition, StepProbe)
	check(TouchPlate{RequireCheck: true, PlateThickness: 3}, StepPrepare, StepVerify, StepPosition, StepProbe)
	check(BitZero{}, StepPrepare, StepPosition, StepProbe)
	check(BitZero{RequireCheck: true}, StepPrepare, StepVerify, StepPosition, StepProbe)
	check(BitSetter{}, StepNavigate, StepProbe, StepCapture)
	check(BitSetter{RequireCheck: true}, StepVerify, StepNavigate, StepProbe, StepCapture)
	check(Custom{GCode: "G0 X1"}, StepPrepare, StepProbe)
	check(Custom{GCode: "G0 X1\nG0 X2\nG0 X3", Axes: []Axis{AxisX}}, StepPrepare, StepProbe)

	// parameters other than requireCheck/axes don't matter
	assert.Equal(t, TotalSteps(TouchPlate{ProbeDistance: 5}), TotalSteps(TouchPlate{ProbeDistance: 50, ProbeFeedrate: 10}))

	assert.Equal(t, 3, runStep(TouchPlate{}))
	assert.Equal(t, 2, runStep(BitSetter{}))
	assert.Equal(t, 3, runStep(BitSetter{RequireCheck: true}))
	assert.Equal(t, 2, runStep(Manual{Axes: []Axis{AxisZ}}))
}

func TestBuild_TouchPlate(t *testing.T) {
	lines, err := Build(TouchPlate{PlateThickness: 3, ProbeDistance: 10, ProbeFeedrate: 100, RequireCheck: true}, DefaultContext())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"G91",
		"G38.2 Z-10 F100",
		"G0 Z4",
		"G38.2 Z-5 F50",
		"G4 P0.15",
		"G10 L20 P1 Z3",
		"G0 Z4",
		"G90",
	}, texts(lines))
	assert.Equal(t, ClassProbe, lines[1].Class)
	assert.Equal(t, ClassDwell, lines[4].Class)
	assert.Equal(t, StageZero, lines[5].Stage)
	assert.Equal(t, 8, countLines(lines))
}

func TestBuild_BitSetter(t *testing.T) {
	lines, err := Build(BitSetter{Position: coord.Point{X: 10, Y: 10, Z: -5}, ProbeDistance: 5, ProbeFeedrate: 100}, DefaultContext())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"G53 G0 Z-1",
		"G53 G0 X10 Y10",
		"G53 G0 Z-5",
	}, texts(Filter(lines, StageNavigate)))
	assert.Equal(t, []string{
		"G91",
		"G38.2 Z-5 F100",
		"G90",
	}, texts(Filter(lines, StageProbe, StageZero)))
}

func TestBuild_BitZero(t *testing.T) {
	ctx := DefaultContext()
	ctx.CoordinateSystem = "G55"
	lines, err := Build(BitZero{ProbeDistance: 15, ProbeFeedrate: 75, ProbeThickness: 3}, ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"G91",
		"G38.2 X-15 F75",
		"%X_MIN = posx",
		"G0 X1",
		"G38.2 X30 F75",
		"%X_MAX = posx",
		"G90 G0 X[(X_MIN + X_MAX) / 2]",
		"G91",
		"G38.2 Y-15 F75",
		"%Y_MIN = posy",
		"G0 Y1",
		"G38.2 Y30 F75",
		"%Y_MAX = posy",
		"G90 G0 Y[(Y_MIN + Y_MAX) / 2]",
		"G10 L20 P2 X0 Y0",
		"G91 G0 Z7",
		"G0 X15",
		"G38.2 Z-15 F75",
		"G4 P0.15",
		"G10 L20 P2 Z3",
		"G0 Z4",
		"G90",
	}, texts(lines))
	assert.True(t, lines[2].Local())
	assert.Equal(t, ClassAssignment, lines[2].Class)
	assert.Equal(t, 18, countLines(lines))
}

func TestBuild_Manual(t *testing.T) {
	ctx := DefaultContext()
	ctx.CoordinateSystem = "g59"
	lines, err := Build(Manual{Axes: []Axis{AxisX, AxisZ}}, ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"G10 L20 P6 X0 Z0"}, texts(lines))

	_, err = Build(Manual{}, ctx)
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = Build(Manual{Axes: []Axis{"A"}}, ctx)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestBuild_Custom(t *testing.T) {
	m := Custom{GCode: `
; header comment
G21 ; metric
(only a comment)

G91
G38.2 Z-20 F50 (slow)
%msg Touching off
%wait
%Z_TOP = posz ; remember
G4 P0.5
$G
G0 Z[Z_TOP + 2]
G10 L20 P1 Z0
`}
	lines, err := Build(m, DefaultContext())
	require.NoError(t, err)

	exp := []Line{
		{Text: "G21 ; metric", Class: ClassMode, Stage: StageProbe},
		{Text: "G91", Class: ClassMode, Stage: StageProbe},
		{Text: "G38.2 Z-20 F50 (slow)", Class: ClassProbe, Stage: StageProbe},
		{Text: "%msg Touching off", Class: ClassMode, Stage: StageProbe},
		{Text: "%wait", Class: ClassDwell, Stage: StageProbe},
		{Text: "%Z_TOP = posz", Class: ClassAssignment, Stage: StageProbe},
		{Text: "G4 P0.5", Class: ClassDwell, Stage: StageProbe},
		{Text: "$G", Class: ClassMode, Stage: StageProbe},
		{Text: "G0 Z[Z_TOP + 2]", Class: ClassMovement, Stage: StageProbe},
		{Text: "G10 L20 P1 Z0", Class: ClassMode, Stage: StageProbe},
	}
	if diff := cmp.Diff(exp, lines); diff != "" {
		t.Errorf("custom lines mismatch (-want +got):\n%s", diff)
	}
	// $G is a query, macro lines are local
	assert.Equal(t, 6, countLines(lines))

	// deterministic
	again, err := Build(m, DefaultContext())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(lines, again))
}

func TestBuild_CustomEmpty(t *testing.T) {
	for _, body := range []string{"", "   \n\t\n", "; comment\n(another)\n  ; more  "} {
		_, err := Build(Custom{GCode: body}, DefaultContext())
		assert.Equal(t, KindConfiguration, KindOf(err), "%q", body)
	}
}

func TestBuild_Invalid(t *testing.T) {
	_, err := Build(TouchPlate{ProbeDistance: 0, ProbeFeedrate: 100}, DefaultContext())
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = Build(BitSetter{ProbeDistance: 5, ProbeFeedrate: -1}, DefaultContext())
	assert.Equal(t, KindConfiguration, KindOf(err))

	ctx := DefaultContext()
	ctx.CoordinateSystem = "G53"
	_, err = Build(TouchPlate{ProbeDistance: 5, ProbeFeedrate: 100}, ctx)
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = Build(nil, DefaultContext())
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestClassify_Custom(t *testing.T) {
	assert.Equal(t, ClassProbe, classify("G38.4 X5 F10"))
	assert.Equal(t, ClassDwell, classify("G4 P1"))
	assert.Equal(t, ClassMovement, classify("X10 Y5"))
	assert.Equal(t, ClassMovement, classify("G1 F100"))
	assert.Equal(t, ClassMode, classify("G90"))
	assert.Equal(t, ClassMode, classify("M5"))
	assert.Equal(t, ClassMovement, classify("$H"))
	assert.Equal(t, ClassMovement, classify("$J=G91 X1 F100"))
	assert.Equal(t, ClassMode, classify("$G"))
	assert.Equal(t, ClassMode, classify("$X"))
	assert.Equal(t, ClassMode, classify("G10 L20 P1 Z0"))
	assert.Equal(t, ClassMode, classify("G92 X0 Y0"))
	assert.Equal(t, ClassMode, classify("G92.1"))
}

func TestDecodeMethod(t *testing.T) {
	m, err := DecodeMethod([]byte(`{"type":"bitsetter","position":{"X":10,"Y":10,"Z":-5},"probeDistance":5,"probeFeedrate":100}`))
	require.NoError(t, err)
	assert.Equal(t, BitSetter{Position: coord.Point{X: 10, Y: 10, Z: -5}, ProbeDistance: 5, ProbeFeedrate: 100}, m)

	m, err = DecodeMethod([]byte(`{"type":"manual","axes":["X","Z"]}`))
	require.NoError(t, err)
	assert.Equal(t, Manual{Axes: []Axis{AxisX, AxisZ}}, m)

	data, err := EncodeMethod(TouchPlate{PlateThickness: 3, ProbeDistance: 10, ProbeFeedrate: 100, RequireCheck: true})
	require.NoError(t, err)
	m, err = DecodeMethod(data)
	require.NoError(t, err)
	assert.Equal(t, TouchPlate{PlateThickness: 3, ProbeDistance: 10, ProbeFeedrate: 100, RequireCheck: true}, m)

	_, err = DecodeMethod([]byte(`{"type":"laser"}`))
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = DecodeMethod([]byte(`nope`))
	assert.Error(t, err)
}
