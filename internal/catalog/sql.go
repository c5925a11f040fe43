package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leadworks/qualifier/internal/core/db"
	"github.com/leadworks/qualifier/internal/types"
)

// Store persists the operand catalog in the qualifier database.
// The rule engine never reads the Store directly; it consumes Snapshots
// produced by Load so catalog lookups stay pure and allocation-free during
// evaluation.
type Store struct {
	q *db.Queries
}

// NewStore creates a catalog store over loaded named queries.
func NewStore(q *db.Queries) *Store {
	return &Store{q: q}
}

type attributeRow struct {
	Name      string `db:"name"`
	ValueType string `db:"value_type"`
}

type eventRow struct {
	Name       string `db:"name"`
	Properties string `db:"properties"`
}

// Load reads the full catalog into an immutable snapshot.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	attrs, err := s.ListAttributes(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(attrs, events), nil
}

// ListAttributes returns all attribute definitions ordered by name.
func (s *Store) ListAttributes(ctx context.Context) ([]AttributeDef, error) {
	var rows []attributeRow
	if err := s.q.Select(ctx, "list-attributes", &rows); err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	out := make([]AttributeDef, 0, len(rows))
	for _, r := range rows {
		out = append(out, AttributeDef{Name: r.Name, Type: types.ValueType(r.ValueType)})
	}
	return out, nil
}

// ListEvents returns all event definitions ordered by name.
// Events with malformed property documents are skipped rather than failing
// the whole listing; the catalog is advisory input to authoring.
func (s *Store) ListEvents(ctx context.Context) ([]EventDef, error) {
	var rows []eventRow
	if err := s.q.Select(ctx, "list-events", &rows); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	out := make([]EventDef, 0, len(rows))
	for _, r := range rows {
		var props []EventProperty
		if r.Properties != "" {
			if err := json.Unmarshal([]byte(r.Properties), &props); err != nil {
				continue
			}
		}
		out = append(out, EventDef{Name: r.Name, Properties: props})
	}
	return out, nil
}

// UpsertAttribute creates or replaces an attribute definition.
func (s *Store) UpsertAttribute(ctx context.Context, def AttributeDef) error {
	if _, err := s.q.Exec(ctx, "upsert-attribute", def.Name, string(def.Type)); err != nil {
		return fmt.Errorf("failed to upsert attribute %s: %w", def.Name, err)
	}
	return nil
}

// UpsertEvent creates or replaces an event definition.
func (s *Store) UpsertEvent(ctx context.Context, def EventDef) error {
	props, err := json.Marshal(def.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties for event %s: %w", def.Name, err)
	}
	if _, err := s.q.Exec(ctx, "upsert-event", def.Name, string(props)); err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", def.Name, err)
	}
	return nil
}

// DeleteAttribute removes an attribute definition. Conditions referencing
// it become dangling and stop matching; they are not rewritten.
func (s *Store) DeleteAttribute(ctx context.Context, name string) error {
	if _, err := s.q.Exec(ctx, "delete-attribute", name); err != nil {
		return fmt.Errorf("failed to delete attribute %s: %w", name, err)
	}
	return nil
}

// DeleteEvent removes an event definition.
func (s *Store) DeleteEvent(ctx context.Context, name string) error {
	if _, err := s.q.Exec(ctx, "delete-event", name); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", name, err)
	}
	return nil
}
