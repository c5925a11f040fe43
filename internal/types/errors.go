package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for qualifier operations.
var (
	// ErrRuleNotFound indicates a rule lookup by unknown ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrEmptyGroup indicates a group with no conditions and no sub-groups.
	ErrEmptyGroup = errors.New("condition group has no conditions and no sub-groups")

	// ErrGroupTooDeep indicates a condition tree exceeding the depth guard.
	ErrGroupTooDeep = errors.New("condition tree exceeds maximum depth")

	// ErrNoGroups indicates a rule without top-level condition groups.
	ErrNoGroups = errors.New("rule has no top-level condition groups")

	// ErrUnknownOperand indicates a condition referencing an operand the
	// catalog does not know at authoring time.
	ErrUnknownOperand = errors.New("unknown operand")

	// ErrIllegalOperator indicates an operator outside the operand type's table.
	ErrIllegalOperator = errors.New("operator not valid for operand type")

	// ErrIllegalTransition indicates a lifecycle transition the state
	// machine does not permit.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// StructuralError reports an invalid condition tree shape. It is raised at
// authoring time (save or activation) and never reaches the evaluator.
type StructuralError struct {
	GroupID string // offending group, empty for rule-level violations
	Err     error  // underlying sentinel (ErrEmptyGroup, ErrGroupTooDeep, ...)
}

func (e *StructuralError) Error() string {
	if e.GroupID == "" {
		return fmt.Sprintf("structural error: %v", e.Err)
	}
	return fmt.Sprintf("structural error in group %s: %v", e.GroupID, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// ValidationError reports an author-time condition violation: an illegal
// operator for the operand type, a missing or mistyped comparison value,
// or a filter placed on a non-event condition.
type ValidationError struct {
	ConditionID string
	Reason      string
	Err         error // optional underlying sentinel
}

func (e *ValidationError) Error() string {
	if e.ConditionID == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error in condition %s: %s", e.ConditionID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// VersionConflictError reports an optimistic-concurrency write conflict.
// The caller must re-fetch the rule and retry; no automatic retry is
// performed by the engine.
type VersionConflictError struct {
	RuleID   RuleID
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on rule %s: expected %d, store has %d",
		e.RuleID, e.Expected, e.Actual)
}
