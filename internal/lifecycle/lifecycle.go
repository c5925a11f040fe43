// Package lifecycle implements the rule state machine: draft -> active,
// active <-> paused, and the versioning rules applied on content edits.
//
// Transitions are synchronous, user-initiated, and idempotent when
// re-applied with the same target state. No state is terminal; deletion is
// an explicit external action, not a lifecycle transition.
package lifecycle

import (
	"time"

	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/rules"
	"github.com/leadworks/qualifier/internal/types"
)

// Manager enforces legal status transitions and versioning when a rule is
// saved or toggled. It operates on in-memory rules; persistence and
// optimistic concurrency belong to the store.
type Manager struct {
	cat  catalog.Catalog
	opts rules.CompileOptions
	now  func() time.Time
}

// NewManager creates a lifecycle manager. The clock is injectable for
// deterministic tests; nil means time.Now.
func NewManager(cat catalog.Catalog, opts rules.CompileOptions, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{cat: cat, opts: opts, now: now}
}

// NewRule initializes a draft rule from authored content: version 1,
// timestamps set, status forced to draft regardless of input.
func (m *Manager) NewRule(r *types.Rule, createdBy string) *types.Rule {
	out := r.Clone()
	if out.RuleID == "" {
		out.RuleID = types.NewRuleID()
	}
	now := m.now().UTC()
	out.Status = types.StatusDraft
	out.Version = 1
	out.CreatedBy = createdBy
	out.CreatedAt = now
	out.UpdatedAt = now
	out.MatchCount = 0
	return out
}

// ApplyEdit applies a content edit: the condition tree is validated, the
// version increments, and updatedAt advances. Status is untouched; an
// edited active rule stays active under its new content.
// Returns *types.StructuralError or *types.ValidationError when the edited
// tree is invalid, leaving the input rule unchanged.
func (m *Manager) ApplyEdit(current *types.Rule, edit *types.Rule) (*types.Rule, error) {
	if _, err := rules.Compile(edit, m.cat, m.opts); err != nil {
		return nil, err
	}

	out := current.Clone()
	out.Name = edit.Name
	out.Description = edit.Description
	out.Journey = edit.Journey
	out.Tags = append([]string(nil), edit.Tags...)
	out.RootOperator = edit.RootOperator
	out.ConditionGroups = edit.Clone().ConditionGroups
	out.Alerts = append([]types.AlertConfig(nil), edit.Alerts...)
	out.Version = current.Version + 1
	out.UpdatedAt = m.now().UTC()
	return out, nil
}

// Transition moves a rule to the target status.
// draft -> active requires the condition tree to pass validation and to
// contain at least one top-level group; it is the only transition out of
// draft. active <-> paused is always permitted and touches neither version
// nor tree. Re-applying the current status is a no-op.
func (m *Manager) Transition(r *types.Rule, target types.Status) (*types.Rule, error) {
	if !target.Valid() {
		return nil, types.ErrIllegalTransition
	}

	// Idempotent: same target state leaves the rule untouched
	if r.Status == target {
		return r.Clone(), nil
	}

	switch {
	case r.Status == types.StatusDraft && target == types.StatusActive:
		if err := rules.ValidateForActivation(r, m.cat, m.opts); err != nil {
			return nil, err
		}
	case r.Status == types.StatusActive && target == types.StatusPaused:
	case r.Status == types.StatusPaused && target == types.StatusActive:
	default:
		// Covers draft -> paused and any path back to draft
		return nil, types.ErrIllegalTransition
	}

	out := r.Clone()
	out.Status = target
	out.UpdatedAt = m.now().UTC()
	return out, nil
}
