// internal/rules/evaluate.go
package rules

import (
	"log/slog"
	"time"

	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/types"
)

/*
 * Rule evaluation.
 *
 * Evaluates a CompiledRule against a record: recursive descent over the
 * group tree with AND/OR short-circuit, existential event semantics, and
 * per-condition degraded failure. Depth is bounded at compile time, so the
 * recursion here cannot exhaust the stack.
 *
 * Purity contract: evaluation reads the compiled rule, the record, the
 * injected "now", and the catalog snapshot; it mutates none of them.
 * Concurrent callers may evaluate the same rule without locking.
 *
 * Failure semantics: a dangling operand reference, an invalid regex
 * pattern, or a mistyped record value resolves to "condition does not
 * match". The degradation is recorded on the trace and logged at debug
 * level; it is never returned as an error, so one bad condition cannot
 * fail a batch.
 *
 * Event conditions: occurrences of the named event are filtered by the
 * time window (inclusive cutoff at now - windowDays), then by the base
 * property test. Without a count filter, at least one qualifying
 * occurrence satisfies the condition; with one, the qualifying count is
 * compared against the threshold. not_exists is satisfied exactly when no
 * qualifying occurrence remains.
 */

// ConditionTrace records the outcome of one evaluated condition, for UI
// explainability. Short-circuited conditions do not appear.
type ConditionTrace struct {
	ConditionID  string         `json:"condition_id"`
	OperandName  string         `json:"operand_name"`
	PropertyName string         `json:"property_name,omitempty"`
	Operator     types.Operator `json:"operator"`
	Matched      bool           `json:"matched"`
	Degraded     bool           `json:"degraded,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// MatchResult is the outcome of evaluating one rule against one record.
type MatchResult struct {
	RuleID  types.RuleID     `json:"rule_id"`
	LeadID  types.LeadID     `json:"lead_id,omitempty"`
	Matched bool             `json:"matched"`
	Trace   []ConditionTrace `json:"trace,omitempty"`
}

// Evaluator evaluates compiled rules against records. It holds the catalog
// used to detect dangling operand references and is safe for concurrent
// use.
type Evaluator struct {
	cat catalog.Catalog
	log *slog.Logger
}

// NewEvaluator creates an evaluator over a catalog. A nil logger falls
// back to slog.Default.
func NewEvaluator(cat catalog.Catalog, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{cat: cat, log: log}
}

// Evaluate checks whether the rule matches the record at the given
// evaluation time. "now" is explicit so time-windowed conditions are
// deterministic under test.
func (e *Evaluator) Evaluate(rule *CompiledRule, rec types.Record, now time.Time) MatchResult {
	result := MatchResult{RuleID: rule.RuleID, LeadID: rec.LeadID}

	// A rule with no top-level groups matches nothing (fails closed).
	if len(rule.Groups) == 0 {
		return result
	}

	result.Matched = e.foldGroups(rule.Groups, rule.RootOperator, rec, now, &result)
	return result
}

// EvaluateBatch returns the matching subset of records in input order,
// plus the per-record results for preview traces.
func (e *Evaluator) EvaluateBatch(rule *CompiledRule, records []types.Record, now time.Time) ([]types.Record, []MatchResult) {
	matched := make([]types.Record, 0, len(records))
	results := make([]MatchResult, len(records))
	for i, rec := range records {
		results[i] = e.Evaluate(rule, rec, now)
		if results[i].Matched {
			matched = append(matched, rec)
		}
	}
	return matched, results
}

// foldGroups combines group results under op with short-circuit.
func (e *Evaluator) foldGroups(groups []CompiledGroup, op types.LogicOperator, rec types.Record, now time.Time, result *MatchResult) bool {
	for _, g := range groups {
		ok := e.evalGroup(g, rec, now, result)
		if op == types.LogicAnd && !ok {
			return false
		}
		if op == types.LogicOr && ok {
			return true
		}
	}
	return op == types.LogicAnd
}

// evalGroup folds the group's conditions and sub-groups under its
// operator. AND is vacuously true over an empty child list, which can only
// occur for one of the two lists since empty groups fail compilation.
func (e *Evaluator) evalGroup(group CompiledGroup, rec types.Record, now time.Time, result *MatchResult) bool {
	for _, cond := range group.Conditions {
		ok := e.evalCondition(cond, rec, now, result)
		if group.Operator == types.LogicAnd && !ok {
			return false
		}
		if group.Operator == types.LogicOr && ok {
			return true
		}
	}
	if len(group.SubGroups) > 0 {
		return e.foldGroups(group.SubGroups, group.Operator, rec, now, result)
	}
	return group.Operator == types.LogicAnd
}

// evalCondition dispatches on source type and appends the trace entry.
func (e *Evaluator) evalCondition(cond CompiledCondition, rec types.Record, now time.Time, result *MatchResult) bool {
	trace := ConditionTrace{
		ConditionID:  cond.ID,
		OperandName:  cond.OperandName,
		PropertyName: cond.PropertyName,
		Operator:     cond.Operator,
	}

	switch {
	case cond.Unresolved != "":
		// Leniently compiled condition; it can no longer be resolved
		// against the catalog and never matches.
		trace.Reason = cond.Unresolved
	case cond.SourceType == types.SourceAttribute:
		trace.Matched, trace.Reason = e.evalAttribute(cond, rec)
	case cond.SourceType == types.SourceEvent:
		trace.Matched, trace.Reason = e.evalEvent(cond, rec, now)
	}

	if trace.Reason != "" {
		trace.Degraded = true
		e.log.Debug("condition degraded to non-match",
			"rule_id", result.RuleID,
			"condition_id", cond.ID,
			"operand", cond.OperandName,
			"reason", trace.Reason)
	}

	result.Trace = append(result.Trace, trace)
	return trace.Matched
}

// evalAttribute evaluates an attribute-backed condition. A non-empty
// reason marks a degraded (non-matching) outcome.
func (e *Evaluator) evalAttribute(cond CompiledCondition, rec types.Record) (bool, string) {
	// Dangling reference: the attribute was removed from the catalog after
	// authoring. The condition stops matching instead of failing.
	if _, ok := e.cat.GetAttribute(cond.OperandName); !ok {
		return false, "attribute no longer in catalog"
	}

	value, present := rec.Attributes[cond.OperandName]
	if value == nil {
		present = false
	}

	switch cond.Operator {
	case types.OpExists:
		return present, ""
	case types.OpNotExists:
		return !present, ""
	}
	if !present {
		return false, ""
	}

	actual, err := coerceValue(value, cond.ValueType)
	if err != nil {
		return false, "record value does not match declared type"
	}

	matched, err := compare(cond.ValueType, cond.Operator, actual, cond.Value)
	if err != nil {
		return false, "invalid regex pattern"
	}
	return matched, ""
}

// evalEvent evaluates an event-backed condition over the record's event
// history.
func (e *Evaluator) evalEvent(cond CompiledCondition, rec types.Record, now time.Time) (bool, string) {
	def, ok := e.cat.GetEvent(cond.OperandName)
	if !ok {
		return false, "event no longer in catalog"
	}
	if cond.PropertyName != "" {
		if _, ok := def.Property(cond.PropertyName); !ok {
			return false, "event property no longer in catalog"
		}
	}

	var cutoff time.Time
	if cond.TimeFilter != nil {
		cutoff = now.AddDate(0, 0, -cond.TimeFilter.WindowDays)
	}

	qualifying := 0
	for _, occ := range rec.Events {
		if occ.Name != cond.OperandName {
			continue
		}
		if cond.TimeFilter != nil && occ.Timestamp.Before(cutoff) {
			continue
		}

		if cond.PropertyName == "" {
			qualifying++
			continue
		}

		value, present := occ.Properties[cond.PropertyName]
		if !present || value == nil {
			// Occurrence lacking the property is excluded
			continue
		}
		if existenceOnly(cond.Operator) {
			qualifying++
			continue
		}

		actual, err := coerceValue(value, cond.ValueType)
		if err != nil {
			// Mistyped occurrence data excludes the occurrence, not the rule
			continue
		}
		matched, err := compare(cond.ValueType, cond.Operator, actual, cond.Value)
		if err != nil {
			return false, "invalid regex pattern"
		}
		if matched {
			qualifying++
		}
	}

	if cond.Operator == types.OpNotExists {
		return qualifying == 0, ""
	}
	if cond.CountFilter != nil {
		return compareCount(qualifying, cond.CountFilter.Operator, cond.CountFilter.Threshold), ""
	}
	// Existential semantics: one qualifying occurrence suffices
	return qualifying >= 1, ""
}

// compareCount applies a count filter's numeric test.
func compareCount(count int, op types.Operator, threshold int) bool {
	switch op {
	case types.OpEquals:
		return count == threshold
	case types.OpNotEquals:
		return count != threshold
	case types.OpGreaterThan:
		return count > threshold
	case types.OpLessThan:
		return count < threshold
	case types.OpGreaterOrEqual:
		return count >= threshold
	case types.OpLessOrEqual:
		return count <= threshold
	default:
		return false
	}
}
