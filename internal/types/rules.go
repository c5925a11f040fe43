// internal/types/rules.go
package types

import "time"

/*
 * Domain types for lead qualification rules.
 *
 * Provides Rule, ConditionGroup, Condition and the event filter structures
 * used by internal/rules for compilation and evaluation, and by
 * internal/core/store for JSON document persistence. These types are
 * wire-format agnostic; HTTP request/response shaping happens at the API
 * boundary.
 *
 * Key types:
 *   - Rule: named, versioned, lifecycle-managed condition tree
 *   - ConditionGroup: AND/OR combination of conditions and nested sub-groups
 *   - Condition: single typed predicate over one attribute or event
 *   - TimeFilter/CountFilter: occurrence window and volume constraints
 *
 * Ownership: a Rule exclusively owns its condition tree. Clone() produces
 * the deep copy taken on every save so stored trees are never shared.
 */

// TimeFilter restricts matching event occurrences to the last WindowDays
// days relative to the evaluation-time "now". The cutoff is inclusive.
type TimeFilter struct {
	WindowDays int `json:"window_days"`
}

// CountFilter requires the number of qualifying occurrences to satisfy a
// numeric comparison against Threshold. Only numeric ordering and equality
// operators are legal here.
type CountFilter struct {
	Operator  Operator `json:"operator"`
	Threshold int      `json:"threshold"`
}

// Condition is a single typed predicate: an operand reference, an operator
// drawn from the operand type's table, and an optional comparison value.
// PropertyName is meaningful only for event conditions; its absence means
// the condition tests the event itself (existence/count semantics).
//
// Invariant: Value is nil exactly when Operator is exists/not_exists.
// TimeFilter and CountFilter are only legal on event conditions.
//
// Operand references are weak: the referenced catalog entry may be removed
// after authoring, in which case the condition degrades to non-matching at
// evaluation time instead of failing.
type Condition struct {
	ID           string       `json:"id"`
	SourceType   SourceType   `json:"source_type"`
	OperandName  string       `json:"operand_name"`
	PropertyName string       `json:"property_name,omitempty"`
	Operator     Operator     `json:"operator"`
	Value        any          `json:"value,omitempty"`
	TimeFilter   *TimeFilter  `json:"time_filter,omitempty"`
	CountFilter  *CountFilter `json:"count_filter,omitempty"`
}

// ConditionGroup combines conditions and nested sub-groups under a single
// logical operator. Nesting is unbounded in the model; the depth guard is
// enforced at compilation. A group with no conditions and no sub-groups is
// structurally invalid.
type ConditionGroup struct {
	ID         string           `json:"id"`
	Operator   LogicOperator    `json:"operator"`
	Conditions []Condition      `json:"conditions,omitempty"`
	SubGroups  []ConditionGroup `json:"sub_groups,omitempty"`
}

// Status is the lifecycle state of a rule.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused:
		return true
	}
	return false
}

// AlertConfig is a threshold-triggered notification configured on a rule.
// Delivery is external; the engine only stores the configuration and
// reports which thresholds a computed match volume crosses.
type AlertConfig struct {
	ID        string `json:"id"`
	Threshold int64  `json:"threshold"`
	Channel   string `json:"channel"`
	Enabled   bool   `json:"enabled"`
}

// Rule is a named, tagged, versioned condition tree with lifecycle state.
// Version starts at 1 and increments on every content-changing save;
// lifecycle transitions never touch it. MatchCount is the last computed
// match volume and is advisory only.
type Rule struct {
	RuleID          RuleID           `json:"rule_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Journey         string           `json:"journey,omitempty"`
	Status          Status           `json:"status"`
	Tags            []string         `json:"tags,omitempty"`
	ConditionGroups []ConditionGroup `json:"condition_groups"`
	RootOperator    LogicOperator    `json:"root_operator"`
	CreatedBy       string           `json:"created_by,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int64            `json:"version"`
	MatchCount      int64            `json:"match_count"`
	Alerts          []AlertConfig    `json:"alerts,omitempty"`
}

// Clone returns a deep copy of the rule, including its condition tree.
// Stores take a clone on save so callers cannot mutate persisted state.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.Tags = append([]string(nil), r.Tags...)
	out.Alerts = append([]AlertConfig(nil), r.Alerts...)
	out.ConditionGroups = cloneGroups(r.ConditionGroups)
	return &out
}

func cloneGroups(groups []ConditionGroup) []ConditionGroup {
	if groups == nil {
		return nil
	}
	out := make([]ConditionGroup, len(groups))
	for i, g := range groups {
		out[i] = g
		out[i].Conditions = cloneConditions(g.Conditions)
		out[i].SubGroups = cloneGroups(g.SubGroups)
	}
	return out
}

func cloneConditions(conds []Condition) []Condition {
	if conds == nil {
		return nil
	}
	out := make([]Condition, len(conds))
	for i, c := range conds {
		out[i] = c
		if c.TimeFilter != nil {
			tf := *c.TimeFilter
			out[i].TimeFilter = &tf
		}
		if c.CountFilter != nil {
			cf := *c.CountFilter
			out[i].CountFilter = &cf
		}
	}
	return out
}
