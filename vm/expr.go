package vm

import (
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
)

// env returns the variables visible to expressions.
func (m *Machine) env() map[string]interface{} {
	env := make(map[string]interface{}, len(m.vars)+3)
	for k, v := range m.vars {
		env[k] = v
	}
	env["posx"] = m.pos.X
	env["posy"] = m.pos.Y
	env["posz"] = m.pos.Z
	return env
}

// Eval evaluates an arithmetic expression over the macro variables and
// the probe position.
func (m *Machine) Eval(code string) (float64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, errors.New("empty expression")
	}

	env := m.env()
	prog, err := expr.Compile(code, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return 0, errors.Wrapf(err, "compile %q", code)
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return 0, errors.Wrapf(err, "evaluate %q", code)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, errors.Errorf("expression %q is not a number", code)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.Errorf("expression %q has no finite value", code)
	}
	return v, nil
}
