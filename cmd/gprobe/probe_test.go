package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gprobe/calibration"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/probe"
)

// alarmConn raises ALARM:5 in place of acknowledging a G38 move.
type alarmConn struct {
	fakeConn
}

func (c *alarmConn) SendLine(line, source string) error {
	c.LineSent(line, source)
	if strings.HasPrefix(line, "G38") {
		c.LineReceived("ALARM:5")
		return nil
	}
	c.LineReceived("ok")
	return nil
}

func headless(t *testing.T, conn machine.Transport, m probe.Method) (probe.Status, error) {
	t.Helper()
	timings := probe.Timings{ProbeDelay: time.Millisecond, DwellDelay: time.Millisecond, LineDelay: time.Millisecond, Fallback: 5 * time.Second}

	ctrl := probe.NewController(conn, probe.Config{Timings: timings, Store: calibration.NewMemoryStore()})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := runHeadless(ctx, &out, ctrl, m, probe.DefaultContext())
	require.NoError(t, ctx.Err(), "run did not finish")

	var st probe.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &st), out.String())
	return st, err
}

func TestRunHeadless(t *testing.T) {
	st, err := headless(t, &fakeConn{}, probe.TouchPlate{PlateThickness: 3, ProbeDistance: 10, ProbeFeedrate: 100})
	require.NoError(t, err)
	assert.Equal(t, probe.StateComplete, st.State)
	assert.Equal(t, "touchplate", st.Method)
	assert.Equal(t, st.Total, st.Acked)
	assert.Nil(t, st.Error)
}

func TestRunHeadless_Alarm(t *testing.T) {
	st, err := headless(t, &alarmConn{}, probe.TouchPlate{PlateThickness: 3, ProbeDistance: 10, ProbeFeedrate: 100})
	require.Error(t, err)
	assert.Equal(t, probe.KindProbeContact, probe.KindOf(err))

	assert.Equal(t, probe.StateError, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, probe.KindProbeContact, st.Error.Kind)
}
