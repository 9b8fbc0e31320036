package scan

import (
	"fmt"
	"math"
)

// TargetOp represents comparison operations for scanning
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

// DefaultTolerance is used when a request leaves tolerance at zero.
const DefaultTolerance = 1e-9

// Valid reports whether op is a known operation.
func (op TargetOp) Valid() bool {
	switch op {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpBetween, OpOutside:
		return true
	}
	return false
}

// Ranged reports whether op needs a second bound.
func (op TargetOp) Ranged() bool { return op == OpBetween || op == OpOutside }

// TargetEvaluator handles target condition evaluation with tolerance
type TargetEvaluator struct {
	op        TargetOp
	val1      float64
	val2      float64
	tolerance float64
}

// NewTargetEvaluator validates the target and returns an evaluator for it.
func NewTargetEvaluator(op TargetOp, val1, val2, tolerance float64) (*TargetEvaluator, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidTarget, op)
	}
	if tolerance < 0 || math.IsNaN(tolerance) {
		return nil, fmt.Errorf("%w: tolerance must be non-negative", ErrInvalidTarget)
	}
	if op.Ranged() && val2 < val1 {
		return nil, fmt.Errorf("%w: %s needs target_val2 >= target_val", ErrInvalidTarget, op)
	}
	return &TargetEvaluator{op: op, val1: val1, val2: val2, tolerance: tolerance}, nil
}

// Matches checks if a metric matches the target criteria
func (te *TargetEvaluator) Matches(metric float64) bool {
	switch te.op {
	case OpEqual:
		return math.Abs(metric-te.val1) <= te.tolerance
	case OpGreater:
		return metric > te.val1+te.tolerance
	case OpGreaterEqual:
		return metric >= te.val1-te.tolerance
	case OpLess:
		return metric < te.val1-te.tolerance
	case OpLessEqual:
		return metric <= te.val1+te.tolerance
	case OpBetween:
		return metric >= te.val1-te.tolerance && metric <= te.val2+te.tolerance
	case OpOutside:
		return metric < te.val1-te.tolerance || metric > te.val2+te.tolerance
	default:
		return false
	}
}
