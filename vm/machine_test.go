package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gprobe/coord"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, DirectiveNone, Classify("G0 X1"))
	assert.Equal(t, DirectiveAssign, Classify("%X_MIN = posx"))
	assert.Equal(t, DirectiveWait, Classify(" %wait"))
	assert.Equal(t, DirectiveMsg, Classify("%msg Attach probe"))
	assert.Equal(t, DirectiveAssign, Classify("%waiting = 1"))
}

func TestMachine_Eval(t *testing.T) {
	m := NewMachine()
	m.SetPosition(coord.Point{X: 1, Y: 2, Z: 3})

	check := func(expr string, exp float64) {
		t.Helper()
		v, err := m.Eval(expr)
		require.NoError(t, err, expr)
		assert.InDelta(t, exp, v, 1e-9, expr)
	}
	check("1 + 2 * 3", 7)
	check("(1 + 2) * 3", 9)
	check("-posz + 10/4", -0.5)
	check(" posx - -posy ", 3)
	check("0.5*4", 2)
	check("7", 7)

	for _, bad := range []string{"", "1 +", "(1", "1 2", "nope", "1/0", "2 )", "posx > 1"} {
		_, err := m.Eval(bad)
		assert.Error(t, err, bad)
	}
}

func TestMachine_AssignExpand(t *testing.T) {
	m := NewMachine()

	m.SetPosition(coord.Point{X: -10.5})
	require.NoError(t, m.Assign("%X_MIN = posx ; left wall"))
	m.SetPosition(coord.Point{X: 12.25})
	require.NoError(t, m.Assign("%X_MAX = posx"))

	v, ok := m.Var("X_MIN")
	assert.True(t, ok)
	assert.Equal(t, -10.5, v)

	line, err := m.Expand("G90 G0 X[(X_MIN + X_MAX) / 2]")
	require.NoError(t, err)
	assert.Equal(t, "G90 G0 X0.875", line)

	require.NoError(t, m.Assign("%A = 1/3, B = A * 3"))
	line, err = m.Expand("G0 X[A] Y[B]")
	require.NoError(t, err)
	assert.Equal(t, "G0 X0.333 Y1", line)

	line, err = m.Expand("G0 X1")
	require.NoError(t, err)
	assert.Equal(t, "G0 X1", line)

	line, err = m.Expand("G0 Z1 (see [note])")
	require.NoError(t, err)
	assert.Equal(t, "G0 Z1 (see [note])", line)

	line, err = m.Expand("G0 X[A] ; was [x]")
	require.NoError(t, err)
	assert.Equal(t, "G0 X0.333 ; was [x]", line)

	_, err = m.Expand("G0 X[UNKNOWN]")
	assert.Error(t, err)
	_, err = m.Expand("G0 X[1")
	assert.Error(t, err)
	assert.Error(t, m.Assign("%1X = 2"))
	assert.Error(t, m.Assign("%X"))
	assert.Error(t, m.Assign("G0 X1"))
}
