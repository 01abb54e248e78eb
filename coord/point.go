package coord

import (
	"errors"
	"strconv"
	"strings"
)

// Point is a position in mm.
type Point struct{ X, Y, Z float64 }

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// ParsePoint parses a comma separated coordinate triple as reported by
// the controller (e.g. `-10.000,0.500,-3.250`).
func ParsePoint(data string) (p Point, err error) {
	parts := strings.Split(strings.TrimSpace(data), ",")
	if len(parts) < 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}
