package grbl

import (
	"errors"
	"strings"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/machine"
)

// ProbeReport is a `[PRB:x,y,z:ok]` push message.
type ProbeReport struct {
	coord.Point
	Valid bool
}

func parseProbe(data string) (*ProbeReport, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	if parts[0] != "PRB" || len(parts) != 3 {
		return nil, errors.New("unknown PUSH message: " + data)
	}

	var res ProbeReport
	var err error
	res.Valid = parts[2] == "1"
	res.Point, err = coord.ParsePoint(parts[1])
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// parseStatus applies a `<Idle|MPos:...|WCO:...|Pn:P>` report on top of the
// previous state. WCO is only reported periodically, so it carries over.
func parseStatus(stat machine.State, data string) (*machine.State, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	if parts[0] == "" {
		return nil, errors.New("empty status report")
	}
	stat.Phase = machine.ParsePhase(parts[0])
	stat.ProbePin = false

	var wpos *coord.Point
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = coord.ParsePoint(sParts[1])
		case "WPos":
			var p coord.Point
			p, err = coord.ParsePoint(sParts[1])
			wpos = &p
		case "WCO":
			stat.WCO, err = coord.ParsePoint(sParts[1])
		case "Pn":
			stat.ProbePin = strings.ContainsRune(sParts[1], 'P')
		}
		if err != nil {
			return nil, err
		}
	}
	if wpos != nil {
		// $10=0 reports WPos instead of MPos
		stat.MPos = wpos.Add(stat.WCO)
	}
	return &stat, nil
}
