package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/machine"
)

func TestParseStatus(t *testing.T) {
	stat, err := parseStatus(machine.State{}, "<Idle|MPos:-10.000,-20.000,-5.000|FS:0,0|WCO:-110.000,-120.000,-30.000>")
	require.NoError(t, err)
	assert.Equal(t, machine.PhaseIdle, stat.Phase)
	assert.Equal(t, coord.Point{X: -10, Y: -20, Z: -5}, stat.MPos)
	assert.Equal(t, coord.Point{X: 100, Y: 100, Z: 25}, stat.WPos())
	assert.False(t, stat.ProbePin)

	// WCO carries over, Pn sets the probe pin
	stat, err = parseStatus(*stat, "<Hold:0|MPos:-10.000,-20.000,-6.000|FS:0,0|Pn:PZ>")
	require.NoError(t, err)
	assert.Equal(t, machine.PhaseHold, stat.Phase)
	assert.Equal(t, coord.Point{X: -110, Y: -120, Z: -30}, stat.WCO)
	assert.InDelta(t, 24, stat.WPos().Z, 1e-9)
	assert.True(t, stat.ProbePin)
}

func TestParseStatus_WPos(t *testing.T) {
	prev := machine.State{WCO: coord.Point{X: 1, Y: 2, Z: 3}}
	stat, err := parseStatus(prev, "<Run|WPos:10.000,10.000,10.000>")
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 11, Y: 12, Z: 13}, stat.MPos)
	assert.Equal(t, coord.Point{X: 10, Y: 10, Z: 10}, stat.WPos())
}

func TestParseStatus_Invalid(t *testing.T) {
	_, err := parseStatus(machine.State{}, "<>")
	assert.Error(t, err)

	_, err = parseStatus(machine.State{}, "<Idle|MPos:1,2>")
	assert.Error(t, err)
}

func TestParseProbe(t *testing.T) {
	prb, err := parseProbe("[PRB:-1.000,2.500,-30.125:1]")
	require.NoError(t, err)
	assert.True(t, prb.Valid)
	assert.Equal(t, coord.Point{X: -1, Y: 2.5, Z: -30.125}, prb.Point)

	prb, err = parseProbe("[PRB:0.000,0.000,0.000:0]")
	require.NoError(t, err)
	assert.False(t, prb.Valid)

	_, err = parseProbe("[G54:0.000,0.000,0.000]")
	assert.Error(t, err)
}
