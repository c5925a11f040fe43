package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leadworks/qualifier/internal/core/db"
	"github.com/leadworks/qualifier/internal/types"
)

// openTestStore opens a migrated SQLite store on a per-test file.
func openTestStore(t *testing.T) *SQL {
	t.Helper()

	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "qualifier.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.MigrateUp(conn); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	queries, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	return NewSQL(queries)
}

func TestSQL_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rule := sampleRule("0191d8a0-0000-7000-8000-000000000001", t0)
	rule.Description = "age gate"
	rule.CreatedBy = "ops@example.com"
	rule.MatchCount = 7
	rule.Alerts = []types.AlertConfig{{ID: "a1", Threshold: 100, Channel: "slack", Enabled: true}}
	rule.ConditionGroups[0].Conditions = append(rule.ConditionGroups[0].Conditions, types.Condition{
		ID:           "c2",
		SourceType:   types.SourceEvent,
		OperandName:  "purchase",
		PropertyName: "amount",
		Operator:     types.OpGreaterOrEqual,
		Value:        float64(100),
		TimeFilter:   &types.TimeFilter{WindowDays: 30},
		CountFilter:  &types.CountFilter{Operator: types.OpGreaterOrEqual, Threshold: 2},
	})

	if _, err := s.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.Get(ctx, rule.RuleID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got, rule) {
		t.Errorf("round trip diverged:\n got %+v\nwant %+v", got, rule)
	}
}

func TestSQL_GetUnknown(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Get() error = %v, want ErrRuleNotFound", err)
	}
}

func TestSQL_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rule := sampleRule("rule-1", t0)
	if _, err := s.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	first := sampleRule("rule-1", t0)
	first.Name = "first writer"
	first.Version = 2
	newVersion, err := s.Update(ctx, "rule-1", 1, first)
	if err != nil {
		t.Fatalf("first Update() error = %v", err)
	}
	if newVersion != 2 {
		t.Errorf("Update() version = %d, want 2", newVersion)
	}

	// The second writer read version 1 before the first write landed
	second := sampleRule("rule-1", t0)
	second.Name = "second writer"
	second.Version = 2
	_, err = s.Update(ctx, "rule-1", 1, second)

	var conflict *types.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second Update() error = %v, want *VersionConflictError", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Errorf("conflict = expected %d actual %d, want expected 1 actual 2", conflict.Expected, conflict.Actual)
	}

	got, _ := s.Get(ctx, "rule-1")
	if got.Name != "first writer" {
		t.Errorf("Name = %q after conflict, want first writer", got.Name)
	}
}

func TestSQL_UpdateUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Update(context.Background(), "missing", 1, sampleRule("missing", t0))
	if !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Update() error = %v, want ErrRuleNotFound", err)
	}
}

func TestSQL_ListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	oldest := sampleRule("rule-a", t0)
	middle := sampleRule("rule-b", t0.Add(time.Hour))
	middle.Status = types.StatusActive
	middle.Journey = "banking"
	newest := sampleRule("rule-c", t0.Add(2*time.Hour))
	newest.Tags = []string{"beta"}

	for _, r := range []*types.Rule{oldest, middle, newest} {
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s) error = %v", r.RuleID, err)
		}
	}

	all, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(all))
	}
	if all[0].RuleID != "rule-c" || all[2].RuleID != "rule-a" {
		t.Errorf("order = %s..%s, want rule-c..rule-a", all[0].RuleID, all[2].RuleID)
	}

	active, err := s.List(ctx, ListFilter{Status: types.StatusActive})
	if err != nil {
		t.Fatalf("List(status) error = %v", err)
	}
	if len(active) != 1 || active[0].RuleID != "rule-b" {
		t.Errorf("List(active) = %v, want [rule-b]", active)
	}

	tagged, err := s.List(ctx, ListFilter{Tag: "beta"})
	if err != nil {
		t.Fatalf("List(tag) error = %v", err)
	}
	if len(tagged) != 1 || tagged[0].RuleID != "rule-c" {
		t.Errorf("List(tag=beta) = %v, want [rule-c]", tagged)
	}
}

func TestSQL_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Delete(ctx, "rule-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "rule-1"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRuleNotFound", err)
	}
	if err := s.Delete(ctx, "rule-1"); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRuleNotFound", err)
	}
}

func TestSQL_SetStatusAndMatchCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.Create(ctx, sampleRule("rule-1", t0)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	stamp := t0.Add(time.Hour).Format(time.RFC3339)
	if err := s.SetStatus(ctx, "rule-1", types.StatusActive, stamp); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := s.SetMatchCount(ctx, "rule-1", 42); err != nil {
		t.Fatalf("SetMatchCount() error = %v", err)
	}

	got, err := s.Get(ctx, "rule-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != types.StatusActive {
		t.Errorf("Status = %s, want active", got.Status)
	}
	if got.MatchCount != 42 {
		t.Errorf("MatchCount = %d, want 42", got.MatchCount)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d after status change, want 1", got.Version)
	}
	if !got.UpdatedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, t0.Add(time.Hour))
	}

	if err := s.SetStatus(ctx, "missing", types.StatusActive, stamp); !errors.Is(err, types.ErrRuleNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrRuleNotFound", err)
	}
}
