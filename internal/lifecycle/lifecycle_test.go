package lifecycle

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/rules"
	"github.com/leadworks/qualifier/internal/types"
)

func testCatalog() *catalog.Snapshot {
	return catalog.NewSnapshot(
		[]catalog.AttributeDef{
			{Name: "age", Type: types.ValueNumber},
			{Name: "plan", Type: types.ValueString},
		},
		nil,
	)
}

func testManager(now time.Time) *Manager {
	return NewManager(testCatalog(), rules.CompileOptions{}, func() time.Time { return now })
}

func validRule() *types.Rule {
	return &types.Rule{
		Name:         "qualified leads",
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
	}
}

var clock = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func TestNewRule(t *testing.T) {
	m := testManager(clock)

	draft := validRule()
	draft.Status = types.StatusActive // client-supplied status is ignored
	draft.Version = 17
	draft.MatchCount = 99

	rule := m.NewRule(draft, "ops@example.com")

	if rule.Status != types.StatusDraft {
		t.Errorf("Status = %s, want draft", rule.Status)
	}
	if rule.Version != 1 {
		t.Errorf("Version = %d, want 1", rule.Version)
	}
	if rule.MatchCount != 0 {
		t.Errorf("MatchCount = %d, want 0", rule.MatchCount)
	}
	if rule.RuleID == "" {
		t.Error("RuleID not assigned")
	}
	if rule.CreatedBy != "ops@example.com" {
		t.Errorf("CreatedBy = %q", rule.CreatedBy)
	}
	if !rule.CreatedAt.Equal(clock) || !rule.UpdatedAt.Equal(clock) {
		t.Errorf("timestamps = %v / %v, want %v", rule.CreatedAt, rule.UpdatedAt, clock)
	}
}

func TestNewRule_KeepsProvidedID(t *testing.T) {
	m := testManager(clock)
	draft := validRule()
	draft.RuleID = "0191d8a0-0000-7000-8000-000000000001"

	rule := m.NewRule(draft, "")
	if rule.RuleID != draft.RuleID {
		t.Errorf("RuleID = %s, want %s", rule.RuleID, draft.RuleID)
	}
}

func TestTransition_DraftToActive(t *testing.T) {
	m := testManager(clock)
	rule := m.NewRule(validRule(), "")

	active, err := m.Transition(rule, types.StatusActive)
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if active.Status != types.StatusActive {
		t.Errorf("Status = %s, want active", active.Status)
	}
	if active.Version != rule.Version {
		t.Errorf("Version = %d, want %d (transitions never touch the version)", active.Version, rule.Version)
	}
}

// A rule with no condition groups cannot be activated and stays draft.
func TestTransition_EmptyRuleCannotActivate(t *testing.T) {
	m := testManager(clock)
	empty := m.NewRule(&types.Rule{Name: "empty"}, "")

	_, err := m.Transition(empty, types.StatusActive)
	if !errors.Is(err, types.ErrNoGroups) {
		t.Fatalf("Transition() error = %v, want ErrNoGroups", err)
	}
	if empty.Status != types.StatusDraft {
		t.Errorf("Status = %s after failed activation, want draft", empty.Status)
	}
}

func TestTransition_InvalidTreeCannotActivate(t *testing.T) {
	m := testManager(clock)
	broken := validRule()
	broken.ConditionGroups = append(broken.ConditionGroups, types.ConditionGroup{ID: "empty"})
	rule := m.NewRule(broken, "")

	_, err := m.Transition(rule, types.StatusActive)
	if !errors.Is(err, types.ErrEmptyGroup) {
		t.Fatalf("Transition() error = %v, want ErrEmptyGroup", err)
	}
}

func TestTransition_PauseResume(t *testing.T) {
	m := testManager(clock)
	rule := m.NewRule(validRule(), "")

	active, err := m.Transition(rule, types.StatusActive)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	paused, err := m.Transition(active, types.StatusPaused)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != types.StatusPaused {
		t.Errorf("Status = %s, want paused", paused.Status)
	}
	resumed, err := m.Transition(paused, types.StatusActive)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	if resumed.Version != rule.Version {
		t.Errorf("Version = %d after pause/resume, want %d", resumed.Version, rule.Version)
	}
	if !reflect.DeepEqual(resumed.ConditionGroups, rule.ConditionGroups) {
		t.Error("condition tree changed across pause/resume")
	}
}

// Re-applying the current status is a no-op, not an error.
func TestTransition_Idempotent(t *testing.T) {
	m := testManager(clock)
	rule := m.NewRule(validRule(), "")

	same, err := m.Transition(rule, types.StatusDraft)
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if !reflect.DeepEqual(same, rule) {
		t.Error("same-status transition modified the rule")
	}

	active, _ := m.Transition(rule, types.StatusActive)
	again, err := m.Transition(active, types.StatusActive)
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if !reflect.DeepEqual(again, active) {
		t.Error("repeated activation modified the rule")
	}
}

func TestTransition_Illegal(t *testing.T) {
	m := testManager(clock)

	tests := []struct {
		name   string
		from   types.Status
		target types.Status
	}{
		{"draft to paused", types.StatusDraft, types.StatusPaused},
		{"active to draft", types.StatusActive, types.StatusDraft},
		{"paused to draft", types.StatusPaused, types.StatusDraft},
		{"unknown target", types.StatusDraft, types.Status("archived")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := m.NewRule(validRule(), "")
			rule.Status = tt.from

			_, err := m.Transition(rule, tt.target)
			if !errors.Is(err, types.ErrIllegalTransition) {
				t.Fatalf("Transition(%s -> %s) error = %v, want ErrIllegalTransition", tt.from, tt.target, err)
			}
		})
	}
}

func TestApplyEdit(t *testing.T) {
	m := testManager(clock)
	current := m.NewRule(validRule(), "ops@example.com")
	current.Status = types.StatusActive

	later := clock.Add(time.Hour)
	m2 := testManager(later)

	edit := validRule()
	edit.Name = "renamed"
	edit.Tags = []string{"priority"}
	edit.ConditionGroups[0].Conditions[0].Value = float64(50)

	updated, err := m2.ApplyEdit(current, edit)
	if err != nil {
		t.Fatalf("ApplyEdit() error = %v, want nil", err)
	}

	if updated.Version != current.Version+1 {
		t.Errorf("Version = %d, want %d", updated.Version, current.Version+1)
	}
	if updated.Status != types.StatusActive {
		t.Errorf("Status = %s, want active (edits never change status)", updated.Status)
	}
	if updated.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", updated.Name)
	}
	if updated.ConditionGroups[0].Conditions[0].Value != float64(50) {
		t.Error("edited condition value not applied")
	}
	if !updated.CreatedAt.Equal(current.CreatedAt) {
		t.Error("CreatedAt changed on edit")
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
	}
	if updated.RuleID != current.RuleID {
		t.Error("RuleID changed on edit")
	}
}

func TestApplyEdit_InvalidTreeRejected(t *testing.T) {
	m := testManager(clock)
	current := m.NewRule(validRule(), "")

	edit := validRule()
	edit.ConditionGroups[0].Conditions[0].OperandName = "credit_score"

	_, err := m.ApplyEdit(current, edit)
	if !errors.Is(err, types.ErrUnknownOperand) {
		t.Fatalf("ApplyEdit() error = %v, want ErrUnknownOperand", err)
	}
	if current.Version != 1 {
		t.Errorf("Version = %d after rejected edit, want 1", current.Version)
	}
}

// Two consecutive saves produce exactly one version increment each.
func TestApplyEdit_VersionPerSave(t *testing.T) {
	m := testManager(clock)
	rule := m.NewRule(validRule(), "")

	v2, err := m.ApplyEdit(rule, validRule())
	if err != nil {
		t.Fatalf("first edit: %v", err)
	}
	v3, err := m.ApplyEdit(v2, validRule())
	if err != nil {
		t.Fatalf("second edit: %v", err)
	}

	if v2.Version != 2 || v3.Version != 3 {
		t.Errorf("versions = %d, %d, want 2, 3", v2.Version, v3.Version)
	}
}
