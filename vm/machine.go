// Package vm interprets the host-side macro lines embedded in probe sequences.
//
// Macro lines start with `%`: assignments (`%X_MIN = posx`) store a value,
// `%wait` and `%msg` are directives. Regular G-code lines may reference
// variables inside square brackets (`G0 X[(X_MIN + X_MAX) / 2]`); Expand
// replaces each bracketed expression with its value before the line is sent.
package vm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mastercactapus/gprobe/coord"
)

// Directive is the kind of a macro line.
type Directive int

const (
	DirectiveNone Directive = iota
	DirectiveAssign
	DirectiveWait
	DirectiveMsg
)

// Classify returns the directive of a line. Lines that do not start with `%`
// return DirectiveNone.
func Classify(line string) Directive {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "%") {
		return DirectiveNone
	}
	word := strings.ToLower(strings.TrimSpace(line[1:]))
	switch {
	case word == "wait" || strings.HasPrefix(word, "wait "):
		return DirectiveWait
	case word == "msg" || strings.HasPrefix(word, "msg "):
		return DirectiveMsg
	}
	return DirectiveAssign
}

// Machine holds macro variables and the position they are evaluated against.
type Machine struct {
	vars map[string]float64
	pos  coord.Point
}

func NewMachine() *Machine {
	return &Machine{vars: make(map[string]float64)}
}

// SetPosition updates the work position exposed as posx, posy and posz.
func (m *Machine) SetPosition(p coord.Point) { m.pos = p }

// Var returns a variable value.
func (m *Machine) Var(name string) (float64, bool) {
	v, ok := m.vars[name]
	return v, ok
}

// Assign executes an assignment line such as `%X_MIN = posx`. Several
// assignments may be separated by commas.
func (m *Machine) Assign(line string) error {
	s := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
	if !strings.HasPrefix(s, "%") {
		return errors.Errorf("not a macro line: %s", line)
	}
	for _, part := range strings.Split(s[1:], ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return errors.Errorf("invalid assignment: %s", strings.TrimSpace(part))
		}
		name := strings.TrimSpace(kv[0])
		if !isIdent(name) {
			return errors.Errorf("invalid variable name: %q", name)
		}
		v, err := m.Eval(kv[1])
		if err != nil {
			return errors.Wrap(err, name)
		}
		m.vars[name] = v
	}
	return nil
}

// Expand replaces every `[expr]` in line with its value. Comments, both
// `( ... )` and everything after `;`, are copied unchanged.
func (m *Machine) Expand(line string) (string, error) {
	if !strings.ContainsRune(line, '[') {
		return line, nil
	}
	var out strings.Builder
	for i := 0; i < len(line); {
		switch line[i] {
		case ';':
			out.WriteString(line[i:])
			return out.String(), nil
		case '(':
			end := strings.IndexByte(line[i:], ')')
			if end == -1 {
				out.WriteString(line[i:])
				return out.String(), nil
			}
			out.WriteString(line[i : i+end+1])
			i += end + 1
		case '[':
			end := strings.IndexByte(line[i:], ']')
			if end == -1 {
				return "", errors.Errorf("unterminated expression: %s", line[i:])
			}
			v, err := m.Eval(line[i+1 : i+end])
			if err != nil {
				return "", err
			}
			out.WriteString(strconv.FormatFloat(round(v), 'f', -1, 64))
			i += end + 1
		default:
			out.WriteByte(line[i])
			i++
		}
	}
	return out.String(), nil
}

// round limits values to the controller's 3 decimal places.
func round(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if f == 0 {
		return 0
	}
	return f
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
