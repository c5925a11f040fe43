// Package types provides domain models shared across qualifier components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the evaluator can be embedded without pulling in
// storage or transport dependencies. ID utilities in ids.go import uuid but
// are isolated for selective inclusion.
//
// The condition tree (rules.go) is the persisted form: a Rule serializes to
// a single JSON document and must round-trip losslessly.
package types

import "time"

// SourceType distinguishes attribute-backed from event-backed conditions.
type SourceType string

const (
	SourceAttribute SourceType = "attribute"
	SourceEvent     SourceType = "event"
)

// ValueType is the declared type of an attribute or event property.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueDate    ValueType = "date"
)

// LogicOperator combines the children of a condition group.
type LogicOperator string

const (
	LogicAnd LogicOperator = "and"
	LogicOr  LogicOperator = "or"
)

// Operator identifies a comparison applied by a condition.
// Legal operators per value type are defined by the operator tables in
// internal/rules; selecting an operator outside the operand's table is an
// author-time validation failure, never a runtime one.
type Operator string

const (
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpRegex          Operator = "regex"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_than_or_equal"
	OpLessOrEqual    Operator = "less_than_or_equal"
)

// EventOccurrence is one entry in a record's append-only event history.
// Property values are JSON scalars (string, float64, bool) or RFC 3339
// date strings, matching the declared property types in the catalog.
type EventOccurrence struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Record is the attribute/event data of one lead being tested against a
// rule. Attribute values follow JSON scalar conventions: numbers are
// float64, dates are RFC 3339 strings or epoch seconds.
type Record struct {
	LeadID     LeadID            `json:"lead_id,omitempty"`
	Attributes map[string]any    `json:"attributes"`
	Events     []EventOccurrence `json:"events,omitempty"`
}

// Resource limits enforced at rule compilation to keep evaluation bounded.
const (
	// DefaultMaxGroupDepth bounds condition tree nesting. The authoring UI
	// exposes a single level of sub-groups but the evaluator accepts
	// arbitrary depth up to this guard, which exists to reject adversarial
	// trees rather than to constrain legitimate authoring.
	DefaultMaxGroupDepth = 32

	// MaxNameLength bounds rule names.
	MaxNameLength = 256

	// MaxTags bounds the number of tags per rule.
	MaxTags = 32

	// MaxWindowDays bounds event time windows (10 years).
	MaxWindowDays = 3650
)
