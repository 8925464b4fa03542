package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MaxDelta bounds the threshold adjustment a curve may apply in either
// direction.
const MaxDelta = 0.5

// Breakpoint is one [eas, threshold_delta] pair of the adjustment curve.
type Breakpoint struct {
	EAS   float64
	Delta float64
}

// Curve is the piecewise-linear EAS adjustment curve. Breakpoints are sorted
// by EAS ascending; deltas are monotonic non-decreasing so that higher EAS
// never raises the effective threshold.
type Curve []Breakpoint

// Delta returns the threshold delta for the given EAS. Values outside the
// configured breakpoint range clamp to the first/last breakpoint.
func (c Curve) Delta(eas float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if eas <= c[0].EAS {
		return c[0].Delta
	}
	last := c[len(c)-1]
	if eas >= last.EAS {
		return last.Delta
	}
	for i := 1; i < len(c); i++ {
		if eas <= c[i].EAS {
			lo, hi := c[i-1], c[i]
			span := hi.EAS - lo.EAS
			if span == 0 {
				return hi.Delta
			}
			frac := (eas - lo.EAS) / span
			return lo.Delta + frac*(hi.Delta-lo.Delta)
		}
	}
	return last.Delta
}

func parseCurve(node *yaml.Node) (Curve, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, &LoadError{Field: "eas_curve", Line: node.Line, Msg: "must be a list of [eas, delta] pairs"}
	}
	var curve Curve
	for _, item := range node.Content {
		var pair []float64
		if err := item.Decode(&pair); err != nil || len(pair) != 2 {
			return nil, &LoadError{Field: "eas_curve", Line: item.Line, Msg: "each entry must be an [eas, delta] pair"}
		}
		curve = append(curve, Breakpoint{EAS: pair[0], Delta: pair[1]})
	}
	if le := curve.validate(); le != nil {
		le.Line = node.Line
		return nil, le
	}
	return curve, nil
}

func (c Curve) validate() *LoadError {
	if len(c) == 0 {
		return &LoadError{Field: "eas_curve", Msg: "must have at least one breakpoint"}
	}
	for i, bp := range c {
		if bp.EAS < 0 || bp.EAS > 1 {
			return &LoadError{Field: "eas_curve", Msg: fmt.Sprintf("breakpoint %d: eas %g outside [0, 1]", i, bp.EAS)}
		}
		if bp.Delta < -MaxDelta || bp.Delta > MaxDelta {
			return &LoadError{Field: "eas_curve", Msg: fmt.Sprintf("breakpoint %d: delta %g outside [%g, %g]", i, bp.Delta, -MaxDelta, MaxDelta)}
		}
		if i > 0 {
			if bp.EAS <= c[i-1].EAS {
				return &LoadError{Field: "eas_curve", Msg: fmt.Sprintf("breakpoint %d: eas values must be strictly increasing", i)}
			}
			if bp.Delta < c[i-1].Delta {
				return &LoadError{Field: "eas_curve", Msg: fmt.Sprintf("breakpoint %d: deltas must be non-decreasing in eas", i)}
			}
		}
	}
	return nil
}
