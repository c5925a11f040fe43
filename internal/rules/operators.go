// internal/rules/operators.go
package rules

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/leadworks/qualifier/internal/types"
)

/*
 * Operator tables and comparison logic.
 *
 * Single source of truth for which operators are legal per value type,
 * shared by compilation (author-time legality checks) and evaluation
 * (dispatch to a pure comparison function). Selecting an operator outside
 * an operand's table is caught at compile time and never reaches Compare.
 *
 * Comparison rules:
 *   - exists/not_exists: handled by the evaluator before Compare is reached
 *   - string: case-sensitive equals/contains, regex compiled per evaluation
 *   - number: IEEE-754 double semantics, NaN comparisons always false
 *   - boolean: equality only
 *   - date: ordering by epoch instant, equality by UTC calendar day
 *
 * Why function-based: a lookup table of pure comparison functions keyed by
 * (value type, operator) keeps dispatch exhaustive and testable, instead of
 * switching on operator strings at every call site.
 */

// operatorTables maps each value type to its legal operator set.
// The universal existence operators are included in every table.
var operatorTables = map[types.ValueType][]types.Operator{
	types.ValueString: {
		types.OpExists, types.OpNotExists,
		types.OpEquals, types.OpNotEquals,
		types.OpContains, types.OpNotContains,
		types.OpRegex,
	},
	types.ValueNumber: {
		types.OpExists, types.OpNotExists,
		types.OpEquals, types.OpNotEquals,
		types.OpGreaterThan, types.OpLessThan,
		types.OpGreaterOrEqual, types.OpLessOrEqual,
	},
	types.ValueBoolean: {
		types.OpExists, types.OpNotExists,
		types.OpEquals, types.OpNotEquals,
	},
	types.ValueDate: {
		types.OpExists, types.OpNotExists,
		types.OpEquals, types.OpNotEquals,
		types.OpGreaterThan, types.OpLessThan,
		types.OpGreaterOrEqual, types.OpLessOrEqual,
	},
}

// existenceOperators is the table for event conditions without a property:
// the only meaningful tests are occurrence existence and counts.
var existenceOperators = []types.Operator{types.OpExists, types.OpNotExists}

// countOperators is the legal operator set for count filters.
var countOperators = []types.Operator{
	types.OpEquals, types.OpNotEquals,
	types.OpGreaterThan, types.OpLessThan,
	types.OpGreaterOrEqual, types.OpLessOrEqual,
}

// operatorLabels maps operators to the labels the authoring UI displays.
var operatorLabels = map[types.Operator]string{
	types.OpExists:         "exists",
	types.OpNotExists:      "does not exist",
	types.OpEquals:         "equals",
	types.OpNotEquals:      "does not equal",
	types.OpContains:       "contains",
	types.OpNotContains:    "does not contain",
	types.OpRegex:          "matches regex",
	types.OpGreaterThan:    "greater than",
	types.OpLessThan:       "less than",
	types.OpGreaterOrEqual: "greater than or equal",
	types.OpLessOrEqual:    "less than or equal",
}

// OperatorsFor returns the legal operator set for a value type.
func OperatorsFor(vt types.ValueType) []types.Operator {
	ops, ok := operatorTables[vt]
	if !ok {
		return nil
	}
	return append([]types.Operator(nil), ops...)
}

// OperatorLabel returns the human label for an operator, falling back to
// the operator name itself for unknown values.
func OperatorLabel(op types.Operator) string {
	if label, ok := operatorLabels[op]; ok {
		return label
	}
	return string(op)
}

// operatorLegal reports whether op appears in the table for vt.
func operatorLegal(vt types.ValueType, op types.Operator) bool {
	for _, candidate := range operatorTables[vt] {
		if candidate == op {
			return true
		}
	}
	return false
}

// existenceOnly reports whether op is one of the universal existence
// operators.
func existenceOnly(op types.Operator) bool {
	return op == types.OpExists || op == types.OpNotExists
}

// countOperatorLegal reports whether op is legal inside a count filter.
func countOperatorLegal(op types.Operator) bool {
	for _, candidate := range countOperators {
		if candidate == op {
			return true
		}
	}
	return false
}

// compare applies op to an actual value against the condition's target,
// both already coerced to the canonical form for vt (string, float64,
// bool, time.Time). Existence operators never reach this function.
// Returns (matched, nil) on success; a non-nil error marks a degraded
// comparison (invalid regex) that the evaluator resolves to non-match.
func compare(vt types.ValueType, op types.Operator, actual, target any) (bool, error) {
	switch vt {
	case types.ValueString:
		return compareString(op, actual.(string), target.(string))
	case types.ValueNumber:
		return compareNumber(op, actual.(float64), target.(float64)), nil
	case types.ValueBoolean:
		return compareBoolean(op, actual.(bool), target.(bool)), nil
	case types.ValueDate:
		return compareDate(op, actual.(time.Time), target.(time.Time)), nil
	default:
		return false, nil
	}
}

func compareString(op types.Operator, actual, target string) (bool, error) {
	switch op {
	case types.OpEquals:
		return actual == target, nil
	case types.OpNotEquals:
		return actual != target, nil
	case types.OpContains:
		return strings.Contains(actual, target), nil
	case types.OpNotContains:
		return !strings.Contains(actual, target), nil
	case types.OpRegex:
		// Compiled at evaluation time: a pattern invalidated by a regexp
		// engine change degrades to non-match instead of failing the batch.
		re, err := regexp.Compile(target)
		if err != nil {
			return false, err
		}
		return re.MatchString(actual), nil
	default:
		return false, nil
	}
}

// compareNumber follows IEEE-754 double semantics: every comparison
// involving NaN is false, including not_equals.
func compareNumber(op types.Operator, actual, target float64) bool {
	if math.IsNaN(actual) || math.IsNaN(target) {
		return false
	}
	switch op {
	case types.OpEquals:
		return actual == target
	case types.OpNotEquals:
		return actual != target
	case types.OpGreaterThan:
		return actual > target
	case types.OpLessThan:
		return actual < target
	case types.OpGreaterOrEqual:
		return actual >= target
	case types.OpLessOrEqual:
		return actual <= target
	default:
		return false
	}
}

func compareBoolean(op types.Operator, actual, target bool) bool {
	switch op {
	case types.OpEquals:
		return actual == target
	case types.OpNotEquals:
		return actual != target
	default:
		return false
	}
}

// compareDate orders by epoch instant; equality is UTC calendar-day
// granularity so "signed up on 2026-03-01" matches any time that day.
func compareDate(op types.Operator, actual, target time.Time) bool {
	switch op {
	case types.OpEquals:
		return sameUTCDay(actual, target)
	case types.OpNotEquals:
		return !sameUTCDay(actual, target)
	case types.OpGreaterThan:
		return actual.After(target)
	case types.OpLessThan:
		return actual.Before(target)
	case types.OpGreaterOrEqual:
		return !actual.Before(target)
	case types.OpLessOrEqual:
		return !actual.After(target)
	default:
		return false
	}
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
