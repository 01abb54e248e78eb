package probe

import (
	"fmt"
	"strconv"
	"strings"
)

// Context holds the machine-wide parameters a sequence is built with.
type Context struct {
	// CoordinateSystem is the active work coordinate system, G54 through G59.
	CoordinateSystem string `json:"coordinateSystem" yaml:"coordinate_system"`

	// RetractDistance is how far to back off after touching, in mm.
	RetractDistance float64 `json:"retractDistance" yaml:"retract_distance"`

	// DwellSeconds is the pause before setting an offset.
	DwellSeconds float64 `json:"dwellSeconds" yaml:"dwell_seconds"`

	// SafeHeight is the machine Z used to travel to the bit setter.
	SafeHeight float64 `json:"safeHeight" yaml:"safe_height"`

	// SurfaceOffset is the X move from the bore center onto the bit zero surface.
	SurfaceOffset float64 `json:"surfaceOffset" yaml:"surface_offset"`

	// Backoff is the move away from the first bore wall before probing the opposite one.
	Backoff float64 `json:"backoff" yaml:"backoff"`
}

// DefaultContext returns the parameters used when none are configured.
func DefaultContext() Context {
	return Context{
		CoordinateSystem: "G54",
		RetractDistance:  4,
		DwellSeconds:     0.15,
		SafeHeight:       -1,
		SurfaceOffset:    15,
		Backoff:          1,
	}
}

// WCS returns the coordinate system name in canonical form, e.g. "G55".
func (c Context) WCS() string { return strings.ToUpper(strings.TrimSpace(c.CoordinateSystem)) }

// WCSIndex returns the G10 P-number of the coordinate system (G54 = 1).
func (c Context) WCSIndex() (int, error) {
	s := c.WCS()
	n, err := strconv.Atoi(strings.TrimPrefix(s, "G"))
	if err != nil || !strings.HasPrefix(s, "G") || n < 54 || n > 59 {
		return 0, &Error{Kind: KindConfiguration, Message: fmt.Sprintf("invalid coordinate system %q", c.CoordinateSystem)}
	}
	return n - 53, nil
}
