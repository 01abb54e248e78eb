// Package probe sequences multi-step probing procedures on a CNC controller.
//
// A Session streams the lines of one Method to a machine.Transport and
// decides from the acknowledgment, status and position streams when the
// procedure has completed, failed or hung.
package probe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/mastercactapus/gprobe/coord"
)

type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
)

func (a Axis) valid() bool {
	switch a {
	case AxisX, AxisY, AxisZ:
		return true
	}
	return false
}

// A Method is one of Manual, TouchPlate, BitSetter, BitZero or Custom.
type Method interface {
	// Name returns the method type, e.g. "touchplate".
	Name() string

	method()
}

// Manual zeroes the given axes at the current position.
type Manual struct {
	Axes []Axis `json:"axes" yaml:"axes"`
}

// TouchPlate probes Z down onto a plate of known thickness.
type TouchPlate struct {
	PlateThickness float64 `json:"plateThickness" yaml:"plate_thickness"`
	ProbeDistance  float64 `json:"probeDistance" yaml:"probe_distance"`
	ProbeFeedrate  float64 `json:"probeFeedrate" yaml:"probe_feedrate"`
	RequireCheck   bool    `json:"requireCheck" yaml:"require_check"`
}

// BitSetter measures the tool length on a fixed sensor. Position is in
// machine coordinates.
type BitSetter struct {
	Position      coord.Point `json:"position" yaml:"position"`
	ProbeDistance float64     `json:"probeDistance" yaml:"probe_distance"`
	ProbeFeedrate float64     `json:"probeFeedrate" yaml:"probe_feedrate"`
	RequireCheck  bool        `json:"requireCheck" yaml:"require_check"`
}

// BitZero finds the center of a bore in XY, then probes Z on the surface
// next to it.
type BitZero struct {
	ProbeDistance  float64 `json:"probeDistance" yaml:"probe_distance"`
	ProbeFeedrate  float64 `json:"probeFeedrate" yaml:"probe_feedrate"`
	ProbeThickness float64 `json:"probeThickness" yaml:"probe_thickness"`
	RequireCheck   bool    `json:"requireCheck" yaml:"require_check"`
}

// Custom runs user supplied G-code.
type Custom struct {
	GCode string `json:"gcode" yaml:"gcode"`
	Axes  []Axis `json:"axes" yaml:"axes"`
}

func (Manual) Name() string     { return "manual" }
func (TouchPlate) Name() string { return "touchplate" }
func (BitSetter) Name() string  { return "bitsetter" }
func (BitZero) Name() string    { return "bitzero" }
func (Custom) Name() string     { return "custom" }

func (Manual) method()     {}
func (TouchPlate) method() {}
func (BitSetter) method()  {}
func (BitZero) method()    {}
func (Custom) method()     {}

// requireCheck returns true if the method needs a probe continuity check before running.
func requireCheck(m Method) bool {
	switch m := m.(type) {
	case TouchPlate:
		return m.RequireCheck
	case BitSetter:
		return m.RequireCheck
	case BitZero:
		return m.RequireCheck
	}
	return false
}

// DecodeMethod decodes a method from JSON. The `type` field selects the variant.
func DecodeMethod(data []byte) (Method, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(data, &hdr)
	if err != nil {
		return nil, errors.Wrap(err, "decode method")
	}

	var m Method
	switch strings.ToLower(hdr.Type) {
	case "manual":
		var v Manual
		err = json.Unmarshal(data, &v)
		m = v
	case "touchplate":
		var v TouchPlate
		err = json.Unmarshal(data, &v)
		m = v
	case "bitsetter":
		var v BitSetter
		err = json.Unmarshal(data, &v)
		m = v
	case "bitzero":
		var v BitZero
		err = json.Unmarshal(data, &v)
		m = v
	case "custom":
		var v Custom
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, &Error{Kind: KindConfiguration, Message: fmt.Sprintf("unknown method type %q", hdr.Type)}
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode "+hdr.Type)
	}
	return m, nil
}

// EncodeMethod is the inverse of DecodeMethod.
func EncodeMethod(m Method) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	err = json.Unmarshal(data, &fields)
	if err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(m.Name())
	return json.Marshal(fields)
}
