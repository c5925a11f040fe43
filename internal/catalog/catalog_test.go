package catalog

import (
	"context"
	"sort"
	"testing"

	"github.com/leadworks/qualifier/internal/types"
)

func testSnapshot() *Snapshot {
	return NewSnapshot(
		[]AttributeDef{
			{Name: "age", Type: types.ValueNumber},
			{Name: "email", Type: types.ValueString},
		},
		[]EventDef{
			{Name: "purchase", Properties: []EventProperty{
				{Name: "amount", Type: types.ValueNumber},
			}},
			{Name: "login"},
		},
	)
}

func TestSnapshot_Lookups(t *testing.T) {
	s := testSnapshot()

	attr, ok := s.GetAttribute("age")
	if !ok {
		t.Fatal("GetAttribute(age) not found")
	}
	if attr.Type != types.ValueNumber {
		t.Errorf("age type = %s, want number", attr.Type)
	}
	if _, ok := s.GetAttribute("credit_score"); ok {
		t.Error("GetAttribute(credit_score) found, want miss")
	}

	event, ok := s.GetEvent("purchase")
	if !ok {
		t.Fatal("GetEvent(purchase) not found")
	}
	prop, ok := event.Property("amount")
	if !ok {
		t.Fatal("Property(amount) not found")
	}
	if prop.Type != types.ValueNumber {
		t.Errorf("amount type = %s, want number", prop.Type)
	}
	if _, ok := event.Property("discount"); ok {
		t.Error("Property(discount) found, want miss")
	}
	if _, ok := s.GetEvent("churn"); ok {
		t.Error("GetEvent(churn) found, want miss")
	}
}

// Later duplicates win, matching the backing store's upsert semantics.
func TestSnapshot_DuplicatesUpsert(t *testing.T) {
	s := NewSnapshot(
		[]AttributeDef{
			{Name: "age", Type: types.ValueString},
			{Name: "age", Type: types.ValueNumber},
		},
		nil,
	)

	attr, ok := s.GetAttribute("age")
	if !ok {
		t.Fatal("GetAttribute(age) not found")
	}
	if attr.Type != types.ValueNumber {
		t.Errorf("age type = %s, want number (last definition wins)", attr.Type)
	}
}

func TestSnapshot_Listings(t *testing.T) {
	s := testSnapshot()

	attrs := s.Attributes()
	if len(attrs) != 2 {
		t.Fatalf("len(Attributes()) = %d, want 2", len(attrs))
	}
	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("len(Events()) = %d, want 2", len(events))
	}
}

func TestStaticSource(t *testing.T) {
	ctx := context.Background()
	src := StaticSource{Snapshot: testSnapshot()}

	snap, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := snap.GetAttribute("age"); !ok {
		t.Error("loaded snapshot missing age")
	}

	attrs, err := src.ListAttributes(ctx)
	if err != nil {
		t.Fatalf("ListAttributes() error = %v", err)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	if len(attrs) != 2 || attrs[0].Name != "age" {
		t.Errorf("ListAttributes() = %v", attrs)
	}

	events, err := src.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("len(ListEvents()) = %d, want 2", len(events))
	}
}
