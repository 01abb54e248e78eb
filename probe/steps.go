package probe

// StepKind is what the operator does at one wizard step.
type StepKind string

const (
	StepPrepare  StepKind = "prepare"
	StepVerify   StepKind = "verify"
	StepNavigate StepKind = "navigate"
	StepPosition StepKind = "position"
	StepProbe    StepKind = "probe"
	StepCapture  StepKind = "capture"
	StepZero     StepKind = "zero"
)

// Steps returns the ordered wizard steps of m. It depends only on the
// method type, RequireCheck and Axes.
func Steps(m Method) []StepKind {
	switch m := m.(type) {
	case Manual:
		s := []StepKind{StepPosition}
		for range m.Axes {
			s = append(s, StepZero)
		}
		return s
	case TouchPlate, BitZero:
		s := []StepKind{StepPrepare}
		if requireCheck(m) {
			s = append(s, StepVerify)
		}
		return append(s, StepPosition, StepProbe)
	case BitSetter:
		var s []StepKind
		if m.RequireCheck {
			s = append(s, StepVerify)
		}
		return append(s, StepNavigate, StepProbe, StepCapture)
	case Custom:
		return []StepKind{StepPrepare, StepProbe}
	}
	return nil
}

// TotalSteps is len(Steps(m)).
func TotalSteps(m Method) int { return len(Steps(m)) }

// runStep returns the 1-based step a run starts from. Steps before it are
// navigated by the operator, steps after it are reached by the run itself.
func runStep(m Method) int {
	steps := Steps(m)
	for i, s := range steps {
		if s == StepProbe {
			return i + 1
		}
	}
	return len(steps)
}
