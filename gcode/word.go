package gcode

import (
	"strconv"
	"strings"
)

type Word struct {
	W   byte
	Arg float64
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z': // maybe someday 'A', 'B', 'C', 'U', 'V', 'W':
		return true
	}
	return false
}

// IsProbe returns true for the straight-probe family (G38.2 - G38.5).
func (w Word) IsProbe() bool {
	if w.W != 'G' {
		return false
	}
	switch w.Arg {
	case 38.2, 38.3, 38.4, 38.5:
		return true
	}
	return false
}

// IsDwell returns true for G4.
func (w Word) IsDwell() bool { return w.W == 'G' && w.Arg == 4 }

// IsOffset returns true for words that write coordinate offsets (G10, G92
// and G92.1 - G92.3). Their axis words are values, not motion.
func (w Word) IsOffset() bool {
	if w.W != 'G' {
		return false
	}
	switch w.Arg {
	case 10, 92, 92.1, 92.2, 92.3:
		return true
	}
	return false
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 3)
}
