package grbl

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/machine"
)

// router turns raw inbound controller lines into hub events.
type router struct {
	hub *machine.Hub
	log zerolog.Logger

	mx    sync.Mutex
	last  machine.State
	probe *ProbeReport

	now func() time.Time
}

func newRouter(hub *machine.Hub, log zerolog.Logger) *router {
	return &router{hub: hub, log: log, now: time.Now}
}

func (r *router) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if line[0] == '<' {
		r.mx.Lock()
		prev := r.last
		stat, err := parseStatus(prev, line)
		if err != nil {
			r.mx.Unlock()
			r.log.Warn().Err(err).Str("data", line).Msg("parse status")
			return
		}
		stat.Time = r.now()
		r.last = *stat
		r.mx.Unlock()

		if prev.Phase != stat.Phase {
			r.hub.PhaseChanged(prev.Phase, stat.Phase)
		}
		r.hub.StateUpdated(*stat)
		return
	}

	if strings.HasPrefix(line, "[PRB:") {
		prb, err := parseProbe(line)
		if err != nil {
			r.log.Warn().Err(err).Str("data", line).Msg("parse probe report")
		} else {
			r.mx.Lock()
			r.probe = prb
			r.mx.Unlock()
		}
	}

	r.hub.LineReceived(line)
}

// State returns the last status report.
func (r *router) State() machine.State {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.last
}

// LastProbe returns the most recent probe report.
func (r *router) LastProbe() (ProbeReport, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.probe == nil {
		return ProbeReport{}, false
	}
	return *r.probe, true
}
