// Package catalog provides the operand catalog: the set of known typed
// attributes and events that conditions may reference.
//
// The rule engine only consumes the read-only Catalog lookup interface.
// Lookups happen during compilation (to resolve operand types and legal
// operators) and during evaluation (to detect dangling references after a
// catalog entry has been removed). Both paths must be cheap and side-effect
// free, so database-backed deployments load a Snapshot (see sql.go) rather
// than querying per lookup.
package catalog

import (
	"context"

	"github.com/leadworks/qualifier/internal/types"
)

// AttributeDef describes a typed scalar field on a lead.
type AttributeDef struct {
	Name string          `json:"name"`
	Type types.ValueType `json:"type"`
}

// EventProperty describes one typed property of an event.
type EventProperty struct {
	Name string          `json:"name"`
	Type types.ValueType `json:"type"`
}

// EventDef describes a named occurrence with an ordered list of typed
// properties.
type EventDef struct {
	Name       string          `json:"name"`
	Properties []EventProperty `json:"properties,omitempty"`
}

// Property returns the named property definition, if any.
func (e *EventDef) Property(name string) (EventProperty, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return EventProperty{}, false
}

// Catalog is the read-only lookup contract consumed by the rule engine.
// Implementations must be safe for concurrent readers.
type Catalog interface {
	// GetAttribute returns the attribute definition, or false when the
	// name is unknown.
	GetAttribute(name string) (AttributeDef, bool)

	// GetEvent returns the event definition, or false when the name is
	// unknown.
	GetEvent(name string) (EventDef, bool)
}

// Snapshot is an immutable in-memory catalog. It backs tests directly and
// serves as the loaded form of the SQL catalog.
type Snapshot struct {
	attributes map[string]AttributeDef
	events     map[string]EventDef
}

// NewSnapshot builds an immutable catalog from definition lists.
// Later duplicates win, matching upsert semantics of the backing store.
func NewSnapshot(attrs []AttributeDef, events []EventDef) *Snapshot {
	s := &Snapshot{
		attributes: make(map[string]AttributeDef, len(attrs)),
		events:     make(map[string]EventDef, len(events)),
	}
	for _, a := range attrs {
		s.attributes[a.Name] = a
	}
	for _, e := range events {
		s.events[e.Name] = e
	}
	return s
}

// GetAttribute implements Catalog.
func (s *Snapshot) GetAttribute(name string) (AttributeDef, bool) {
	a, ok := s.attributes[name]
	return a, ok
}

// GetEvent implements Catalog.
func (s *Snapshot) GetEvent(name string) (EventDef, bool) {
	e, ok := s.events[name]
	return e, ok
}

// Attributes returns all attribute definitions in unspecified order.
func (s *Snapshot) Attributes() []AttributeDef {
	out := make([]AttributeDef, 0, len(s.attributes))
	for _, a := range s.attributes {
		out = append(out, a)
	}
	return out
}

// Events returns all event definitions in unspecified order.
func (s *Snapshot) Events() []EventDef {
	out := make([]EventDef, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	return out
}

// Source abstracts where the API loads its catalog from: the SQL store in
// deployments, a fixed snapshot in tests.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
	ListAttributes(ctx context.Context) ([]AttributeDef, error)
	ListEvents(ctx context.Context) ([]EventDef, error)
}

// StaticSource adapts a fixed snapshot to the Source contract.
type StaticSource struct {
	Snapshot *Snapshot
}

// Load implements Source.
func (s StaticSource) Load(ctx context.Context) (*Snapshot, error) {
	return s.Snapshot, nil
}

// ListAttributes implements Source.
func (s StaticSource) ListAttributes(ctx context.Context) ([]AttributeDef, error) {
	return s.Snapshot.Attributes(), nil
}

// ListEvents implements Source.
func (s StaticSource) ListEvents(ctx context.Context) ([]EventDef, error) {
	return s.Snapshot.Events(), nil
}
