// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"

	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles a types.Rule into a CompiledRule with resolved operand types and
 * canonicalized comparison values, enforcing every structural and
 * per-condition invariant up front:
 *
 *   1. Tree shape: no empty groups, depth bounded by MaxDepth
 *   2. Operand resolution: attribute/event/property must exist in the
 *      catalog at authoring time (later removal degrades at evaluation)
 *   3. Operator legality per the operand type's table
 *   4. Value presence: nil exactly for exists/not_exists
 *   5. Filters: time/count filters only on event conditions, count filter
 *      operators drawn from the numeric set, no count filter on not_exists
 *
 * Why compile-time validation: catching these at rule save/activation
 * keeps the evaluator free of structural error paths; the only runtime
 * degradations left are dangling references, bad regexes, and mistyped
 * record values, all of which resolve to non-match.
 *
 * A rule with zero top-level groups compiles successfully and fails closed
 * at evaluation; the lifecycle manager separately refuses to activate it.
 *
 * Stored rules passed strict validation when they were saved, but the
 * catalog can drift afterwards: an attribute deleted, an event property
 * retyped. Lenient mode keeps those rules evaluable by compiling each
 * failing condition into an unresolved condition that degrades to
 * non-match, instead of failing the whole rule.
 */

// CompileOptions tunes compilation limits.
type CompileOptions struct {
	// MaxDepth bounds condition tree nesting; zero means
	// types.DefaultMaxGroupDepth.
	MaxDepth int

	// Lenient downgrades per-condition validation failures to unresolved
	// conditions instead of compile errors. Authoring and activation
	// stay strict; evaluation of stored rules is lenient.
	Lenient bool
}

// CompiledCondition is a pre-processed condition ready for evaluation.
type CompiledCondition struct {
	ID           string
	SourceType   types.SourceType
	OperandName  string
	PropertyName string
	Operator     types.Operator
	ValueType    types.ValueType // resolved operand type; empty for existence-only event tests
	Value        any             // canonical comparison value (nil for exists/not_exists)
	TimeFilter   *types.TimeFilter
	CountFilter  *types.CountFilter

	// Unresolved carries the reason a lenient compile could not resolve
	// this condition; the evaluator degrades it to non-match.
	Unresolved string
}

// CompiledGroup is a pre-processed condition group.
type CompiledGroup struct {
	ID         string
	Operator   types.LogicOperator
	Conditions []CompiledCondition
	SubGroups  []CompiledGroup
}

// CompiledRule is fully validated and ready for evaluation.
type CompiledRule struct {
	RuleID       types.RuleID
	Name         string
	RootOperator types.LogicOperator
	Groups       []CompiledGroup
}

// Compile validates and pre-processes a rule for evaluation.
// Returns *types.StructuralError for tree shape violations and
// *types.ValidationError for per-condition violations.
func Compile(rule *types.Rule, cat catalog.Catalog, opts CompileOptions) (*CompiledRule, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = types.DefaultMaxGroupDepth
	}

	compiled := &CompiledRule{
		RuleID:       rule.RuleID,
		Name:         rule.Name,
		RootOperator: normalizeLogic(rule.RootOperator),
		Groups:       make([]CompiledGroup, 0, len(rule.ConditionGroups)),
	}

	for _, group := range rule.ConditionGroups {
		cg, err := compileGroup(group, cat, 1, opts)
		if err != nil {
			return nil, err
		}
		compiled.Groups = append(compiled.Groups, cg)
	}

	return compiled, nil
}

// ValidateForActivation checks the additional constraint for draft -> active:
// the rule must carry at least one top-level group. Compilation covers the
// rest.
func ValidateForActivation(rule *types.Rule, cat catalog.Catalog, opts CompileOptions) error {
	if len(rule.ConditionGroups) == 0 {
		return &types.StructuralError{Err: types.ErrNoGroups}
	}
	// Activation is always strict: a rule with an unresolved condition
	// must be repaired before it can go live.
	opts.Lenient = false
	_, err := Compile(rule, cat, opts)
	return err
}

func compileGroup(group types.ConditionGroup, cat catalog.Catalog, depth int, opts CompileOptions) (CompiledGroup, error) {
	if depth > opts.MaxDepth {
		return CompiledGroup{}, &types.StructuralError{GroupID: group.ID, Err: types.ErrGroupTooDeep}
	}
	if len(group.Conditions) == 0 && len(group.SubGroups) == 0 {
		return CompiledGroup{}, &types.StructuralError{GroupID: group.ID, Err: types.ErrEmptyGroup}
	}

	cg := CompiledGroup{
		ID:       group.ID,
		Operator: normalizeLogic(group.Operator),
	}

	for _, cond := range group.Conditions {
		cc, err := compileCondition(cond, cat)
		if err != nil {
			var invalid *types.ValidationError
			if opts.Lenient && errors.As(err, &invalid) {
				cg.Conditions = append(cg.Conditions, unresolvedCondition(cond, invalid.Reason))
				continue
			}
			return CompiledGroup{}, err
		}
		cg.Conditions = append(cg.Conditions, cc)
	}

	for _, sub := range group.SubGroups {
		sc, err := compileGroup(sub, cat, depth+1, opts)
		if err != nil {
			return CompiledGroup{}, err
		}
		cg.SubGroups = append(cg.SubGroups, sc)
	}

	return cg, nil
}

// unresolvedCondition preserves a condition that no longer validates, so
// the rest of the stored rule keeps evaluating. The condition itself
// degrades to non-match.
func unresolvedCondition(cond types.Condition, reason string) CompiledCondition {
	return CompiledCondition{
		ID:           cond.ID,
		SourceType:   cond.SourceType,
		OperandName:  cond.OperandName,
		PropertyName: cond.PropertyName,
		Operator:     cond.Operator,
		Unresolved:   reason,
	}
}

// compileCondition resolves the operand type, checks operator legality and
// the value/filter invariants, and canonicalizes the comparison value.
func compileCondition(cond types.Condition, cat catalog.Catalog) (CompiledCondition, error) {
	cc := CompiledCondition{
		ID:           cond.ID,
		SourceType:   cond.SourceType,
		OperandName:  cond.OperandName,
		PropertyName: cond.PropertyName,
		Operator:     cond.Operator,
		TimeFilter:   cond.TimeFilter,
		CountFilter:  cond.CountFilter,
	}

	switch cond.SourceType {
	case types.SourceAttribute:
		if cond.PropertyName != "" {
			return CompiledCondition{}, &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      "property_name is only meaningful for event conditions",
			}
		}
		if cond.TimeFilter != nil || cond.CountFilter != nil {
			return CompiledCondition{}, &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      "time and count filters are only meaningful for event conditions",
			}
		}
		def, ok := cat.GetAttribute(cond.OperandName)
		if !ok {
			return CompiledCondition{}, &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      fmt.Sprintf("attribute %q is not in the catalog", cond.OperandName),
				Err:         types.ErrUnknownOperand,
			}
		}
		cc.ValueType = def.Type

	case types.SourceEvent:
		def, ok := cat.GetEvent(cond.OperandName)
		if !ok {
			return CompiledCondition{}, &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      fmt.Sprintf("event %q is not in the catalog", cond.OperandName),
				Err:         types.ErrUnknownOperand,
			}
		}
		if cond.PropertyName != "" {
			prop, ok := def.Property(cond.PropertyName)
			if !ok {
				return CompiledCondition{}, &types.ValidationError{
					ConditionID: cond.ID,
					Reason:      fmt.Sprintf("event %q has no property %q", cond.OperandName, cond.PropertyName),
					Err:         types.ErrUnknownOperand,
				}
			}
			cc.ValueType = prop.Type
		}
		if err := validateFilters(cond); err != nil {
			return CompiledCondition{}, err
		}

	default:
		return CompiledCondition{}, &types.ValidationError{
			ConditionID: cond.ID,
			Reason:      fmt.Sprintf("unknown source type %q", cond.SourceType),
		}
	}

	if err := validateOperator(cond, cc.ValueType); err != nil {
		return CompiledCondition{}, err
	}

	// Value invariant: present exactly when the operator compares.
	if existenceOnly(cond.Operator) {
		if cond.Value != nil {
			return CompiledCondition{}, &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      fmt.Sprintf("operator %s takes no comparison value", cond.Operator),
			}
		}
		return cc, nil
	}
	if cond.Value == nil {
		return CompiledCondition{}, &types.ValidationError{
			ConditionID: cond.ID,
			Reason:      fmt.Sprintf("operator %s requires a comparison value", cond.Operator),
		}
	}

	canonical, err := canonicalTarget(cond.Value, cc.ValueType, cond.Operator)
	if err != nil {
		return CompiledCondition{}, &types.ValidationError{
			ConditionID: cond.ID,
			Reason:      fmt.Sprintf("value is not a valid %s", cc.ValueType),
			Err:         err,
		}
	}
	cc.Value = canonical

	return cc, nil
}

// validateOperator checks the operator against the resolved operand type's
// table. Event conditions without a property only support existence tests.
func validateOperator(cond types.Condition, vt types.ValueType) error {
	if cond.SourceType == types.SourceEvent && cond.PropertyName == "" {
		if !existenceOnly(cond.Operator) {
			return &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      fmt.Sprintf("operator %s requires an event property", cond.Operator),
				Err:         types.ErrIllegalOperator,
			}
		}
		return nil
	}
	if !operatorLegal(vt, cond.Operator) {
		return &types.ValidationError{
			ConditionID: cond.ID,
			Reason:      fmt.Sprintf("operator %s is not valid for %s operands", cond.Operator, vt),
			Err:         types.ErrIllegalOperator,
		}
	}
	return nil
}

// validateFilters checks the event-only time and count filter invariants.
func validateFilters(cond types.Condition) error {
	if tf := cond.TimeFilter; tf != nil {
		if tf.WindowDays <= 0 || tf.WindowDays > types.MaxWindowDays {
			return &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      fmt.Sprintf("time window must be between 1 and %d days", types.MaxWindowDays),
			}
		}
	}
	if cf := cond.CountFilter; cf != nil {
		if cond.Operator == types.OpNotExists {
			// The count of qualifying occurrences is undefined for a
			// negated existence test.
			return &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      "count filter cannot be combined with not_exists",
			}
		}
		if !countOperatorLegal(cf.Operator) {
			return &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      fmt.Sprintf("operator %s is not valid in a count filter", cf.Operator),
				Err:         types.ErrIllegalOperator,
			}
		}
		if cf.Threshold < 0 {
			return &types.ValidationError{
				ConditionID: cond.ID,
				Reason:      "count threshold must be non-negative",
			}
		}
	}
	return nil
}

// canonicalTarget coerces the authored comparison value into canonical
// comparison form. Regex patterns stay strings: the pattern is compiled at
// evaluation time per the degraded-failure contract.
func canonicalTarget(value any, vt types.ValueType, op types.Operator) (any, error) {
	if op == types.OpRegex {
		s, ok := value.(string)
		if !ok {
			return nil, errCoercion
		}
		return s, nil
	}
	return coerceValue(value, vt)
}

// normalizeLogic defaults an unset operator to AND, which is the identity
// for single-child groups where the operator carries no meaning.
func normalizeLogic(op types.LogicOperator) types.LogicOperator {
	if op == types.LogicOr {
		return types.LogicOr
	}
	return types.LogicAnd
}
