package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leadworks/qualifier/internal/types"
)

func sampleRule(id types.RuleID, createdAt time.Time) *types.Rule {
	return &types.Rule{
		RuleID:       id,
		Name:         "rule " + string(id),
		Journey:      "insurance",
		Status:       types.StatusDraft,
		Tags:         []string{"priority"},
		RootOperator: types.LogicAnd,
		ConditionGroups: []types.ConditionGroup{
			{
				ID:       "g1",
				Operator: types.LogicAnd,
				Conditions: []types.Condition{
					{
						ID:          "c1",
						SourceType:  types.SourceAttribute,
						OperandName: "age",
						Operator:    types.OpGreaterThan,
						Value:       float64(60),
					},
				},
			},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Version:   1,
	}
}

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestMemory_CreateGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rule := sampleRule("rule-1", t0)

	id, err := m.Create(ctx, rule)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "rule-1" {
		t.Errorf("Create() id = %s, want rule-1", id)
	}

	got, err := m.Get(ctx, "rule-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got, rule) {
		t.Errorf("Get() = %+v, want %+v", got, rule)
	}

	// Stored state is isolated from caller mutations
	got.Name = "mutated"
	got.ConditionGroups[0].Conditions[0].Value = float64(1)
	fresh, _ := m.Get(ctx, "rule-1")
	if fresh.Name != rule.Name || fresh.ConditionGroups[0].Conditions[0].Value != float64(60) {
		t.Error("mutation of a returned rule leaked into the store")
	}
}

func TestMemory_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Create(ctx, sampleRule("rule-1", t0)); err == nil {
		t.Error("Create() duplicate error = nil, want conflict")
	}
}

func TestMemory_GetUnknown(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Get() error = %v, want ErrRuleNotFound", err)
	}
}

// Two writers race on the same base version; the second save must fail
// with a version conflict and leave the first writer's content in place.
func TestMemory_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first := sampleRule("rule-1", t0)
	first.Name = "first writer"
	first.Version = 2
	if _, err := m.Update(ctx, "rule-1", 1, first); err != nil {
		t.Fatalf("first Update() error = %v", err)
	}

	second := sampleRule("rule-1", t0)
	second.Name = "second writer"
	second.Version = 2
	_, err := m.Update(ctx, "rule-1", 1, second)

	var conflict *types.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Update() error = %v, want *VersionConflictError", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Errorf("conflict = expected %d actual %d, want expected 1 actual 2", conflict.Expected, conflict.Actual)
	}

	got, _ := m.Get(ctx, "rule-1")
	if got.Name != "first writer" {
		t.Errorf("Name = %q after conflict, want first writer", got.Name)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d after conflict, want 2", got.Version)
	}
}

func TestMemory_UpdateUnknown(t *testing.T) {
	m := NewMemory()
	_, err := m.Update(context.Background(), "missing", 1, sampleRule("missing", t0))
	if !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Update() error = %v, want ErrRuleNotFound", err)
	}
}

func TestMemory_UpdatePreservesProvenance(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	original := sampleRule("rule-1", t0)
	original.CreatedBy = "author@example.com"
	if _, err := m.Create(ctx, original); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	edit := sampleRule("rule-1", t0.Add(time.Hour))
	edit.CreatedBy = "someone-else@example.com"
	edit.Version = 2
	if _, err := m.Update(ctx, "rule-1", 1, edit); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := m.Get(ctx, "rule-1")
	if got.CreatedBy != "author@example.com" {
		t.Errorf("CreatedBy = %q, want original author", got.CreatedBy)
	}
	if !got.CreatedAt.Equal(t0) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, t0)
	}
}

func TestMemory_List(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	oldest := sampleRule("rule-a", t0)
	middle := sampleRule("rule-b", t0.Add(time.Hour))
	middle.Status = types.StatusActive
	middle.Journey = "banking"
	newest := sampleRule("rule-c", t0.Add(2*time.Hour))
	newest.Tags = []string{"beta"}

	for _, r := range []*types.Rule{oldest, middle, newest} {
		if _, err := m.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s) error = %v", r.RuleID, err)
		}
	}

	all, err := m.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(all))
	}
	// Newest first
	if all[0].RuleID != "rule-c" || all[2].RuleID != "rule-a" {
		t.Errorf("order = %s..%s, want rule-c..rule-a", all[0].RuleID, all[2].RuleID)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []types.RuleID
	}{
		{"by status", ListFilter{Status: types.StatusActive}, []types.RuleID{"rule-b"}},
		{"by journey", ListFilter{Journey: "insurance"}, []types.RuleID{"rule-c", "rule-a"}},
		{"by tag", ListFilter{Tag: "beta"}, []types.RuleID{"rule-c"}},
		{"no match", ListFilter{Status: types.StatusPaused}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			ids := make([]types.RuleID, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.RuleID)
			}
			if len(ids) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("List(%+v) = %v, want %v", tt.filter, ids, tt.want)
			}
		})
	}
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := m.Delete(ctx, "rule-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, "rule-1"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRuleNotFound", err)
	}
	if err := m.Delete(ctx, "rule-1"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRuleNotFound", err)
	}
}

func TestMemory_SetStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	transitionedAt := t0.Add(time.Hour)
	if err := m.SetStatus(ctx, "rule-1", types.StatusActive, transitionedAt.Format(time.RFC3339)); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	got, _ := m.Get(ctx, "rule-1")
	if got.Status != types.StatusActive {
		t.Errorf("Status = %s, want active", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d after status change, want 1", got.Version)
	}
	if !got.UpdatedAt.Equal(transitionedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, transitionedAt)
	}

	if err := m.SetStatus(ctx, "rule-1", types.StatusPaused, "yesterday"); err == nil {
		t.Error("SetStatus() with malformed timestamp error = nil, want error")
	}

	stamp := transitionedAt.Format(time.RFC3339)
	if err := m.SetStatus(ctx, "missing", types.StatusActive, stamp); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrRuleNotFound", err)
	}
}

func TestMemory_SetMatchCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := m.SetMatchCount(ctx, "rule-1", 42); err != nil {
		t.Fatalf("SetMatchCount() error = %v", err)
	}
	got, _ := m.Get(ctx, "rule-1")
	if got.MatchCount != 42 {
		t.Errorf("MatchCount = %d, want 42", got.MatchCount)
	}

	if err := m.SetMatchCount(ctx, "missing", 1); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("SetMatchCount(missing) error = %v, want ErrRuleNotFound", err)
	}
}
