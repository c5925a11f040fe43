package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadworks/qualifier/internal/core/db"
	"github.com/leadworks/qualifier/internal/types"
)

// SQL is the sqlx/dotsql-backed RuleStore. The condition tree, tags, and
// alert configs persist as JSON documents; scalar columns carry what the
// listing UI filters and sorts on. Round-tripping through the document is
// lossless by construction: the stored JSON is the marshaled domain type.
type SQL struct {
	q *db.Queries
}

// NewSQL creates a SQL rule store over loaded named queries.
func NewSQL(q *db.Queries) *SQL {
	return &SQL{q: q}
}

type ruleRow struct {
	RuleID       string `db:"rule_id"`
	Name         string `db:"name"`
	Description  string `db:"description"`
	Journey      string `db:"journey"`
	Status       string `db:"status"`
	Tags         string `db:"tags"`
	RootOperator string `db:"root_operator"`
	Expression   string `db:"expression"`
	Alerts       string `db:"alerts"`
	CreatedBy    string `db:"created_by"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
	Version      int64  `db:"version"`
	MatchCount   int64  `db:"match_count"`
}

// Create implements RuleStore.
func (s *SQL) Create(ctx context.Context, rule *types.Rule) (types.RuleID, error) {
	row, err := toRow(rule)
	if err != nil {
		return "", err
	}
	_, err = s.q.Exec(ctx, "create-rule",
		row.RuleID, row.Name, row.Description, row.Journey, row.Status,
		row.Tags, row.RootOperator, row.Expression, row.Alerts,
		row.CreatedBy, row.CreatedAt, row.UpdatedAt, row.Version, row.MatchCount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create rule: %w", err)
	}
	return rule.RuleID, nil
}

// Update implements RuleStore. The version predicate in the UPDATE is the
// optimistic concurrency check: zero rows affected means either a missing
// rule or a stale expected version, disambiguated by a version lookup.
func (s *SQL) Update(ctx context.Context, id types.RuleID, expectedVersion int64, rule *types.Rule) (int64, error) {
	row, err := toRow(rule)
	if err != nil {
		return 0, err
	}

	res, err := s.q.Exec(ctx, "update-rule",
		row.Name, row.Description, row.Journey, row.Tags, row.RootOperator,
		row.Expression, row.Alerts, row.UpdatedAt, row.Version,
		string(id), expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected > 0 {
		return row.Version, nil
	}

	var actual int64
	err = s.q.Get(ctx, "get-rule-version", &actual, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, types.ErrRuleNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check rule version: %w", err)
	}
	return 0, &types.VersionConflictError{RuleID: id, Expected: expectedVersion, Actual: actual}
}

// Get implements RuleStore.
func (s *SQL) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	err := s.q.Get(ctx, "get-rule", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return fromRow(row)
}

// List implements RuleStore. The named query returns all rules newest
// first; status/journey/tag narrowing happens here because dotsql queries
// are static and the rule table is admin-scale.
func (s *SQL) List(ctx context.Context, filter ListFilter) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-rules", &rows); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	out := make([]*types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := fromRow(row)
		if err != nil {
			// A corrupt document should not hide every other rule
			continue
		}
		if filter.matches(rule) {
			out = append(out, rule)
		}
	}
	return out, nil
}

// Delete implements RuleStore.
func (s *SQL) Delete(ctx context.Context, id types.RuleID) error {
	res, err := s.q.Exec(ctx, "delete-rule", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

// SetStatus implements RuleStore.
func (s *SQL) SetStatus(ctx context.Context, id types.RuleID, status types.Status, updatedAt string) error {
	res, err := s.q.Exec(ctx, "update-rule-status", string(status), updatedAt, string(id))
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read status update result: %w", err)
	}
	if affected == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

// SetMatchCount implements RuleStore.
func (s *SQL) SetMatchCount(ctx context.Context, id types.RuleID, count int64) error {
	if _, err := s.q.Exec(ctx, "update-rule-match-count", count, string(id)); err != nil {
		return fmt.Errorf("failed to update match count: %w", err)
	}
	return nil
}

// toRow marshals a rule into its persisted shape. Timestamps are RFC 3339
// UTC strings for driver portability.
func toRow(rule *types.Rule) (ruleRow, error) {
	tags, err := json.Marshal(ruleTags(rule))
	if err != nil {
		return ruleRow{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	expr, err := json.Marshal(rule.ConditionGroups)
	if err != nil {
		return ruleRow{}, fmt.Errorf("failed to encode condition tree: %w", err)
	}
	alerts, err := json.Marshal(ruleAlerts(rule))
	if err != nil {
		return ruleRow{}, fmt.Errorf("failed to encode alerts: %w", err)
	}

	return ruleRow{
		RuleID:       string(rule.RuleID),
		Name:         rule.Name,
		Description:  rule.Description,
		Journey:      rule.Journey,
		Status:       string(rule.Status),
		Tags:         string(tags),
		RootOperator: string(rule.RootOperator),
		Expression:   string(expr),
		Alerts:       string(alerts),
		CreatedBy:    rule.CreatedBy,
		CreatedAt:    rule.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    rule.UpdatedAt.UTC().Format(time.RFC3339),
		Version:      rule.Version,
		MatchCount:   rule.MatchCount,
	}, nil
}

// fromRow unmarshals the persisted shape back into the domain type.
func fromRow(row ruleRow) (*types.Rule, error) {
	rule := &types.Rule{
		RuleID:       types.RuleID(row.RuleID),
		Name:         row.Name,
		Description:  row.Description,
		Journey:      row.Journey,
		Status:       types.Status(row.Status),
		RootOperator: types.LogicOperator(row.RootOperator),
		CreatedBy:    row.CreatedBy,
		Version:      row.Version,
		MatchCount:   row.MatchCount,
	}

	if err := json.Unmarshal([]byte(row.Tags), &rule.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for rule %s: %w", row.RuleID, err)
	}
	if err := json.Unmarshal([]byte(row.Expression), &rule.ConditionGroups); err != nil {
		return nil, fmt.Errorf("failed to decode condition tree for rule %s: %w", row.RuleID, err)
	}
	if err := json.Unmarshal([]byte(row.Alerts), &rule.Alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts for rule %s: %w", row.RuleID, err)
	}

	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for rule %s: %w", row.RuleID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for rule %s: %w", row.RuleID, err)
	}
	rule.CreatedAt = createdAt
	rule.UpdatedAt = updatedAt

	return rule, nil
}

// ruleTags and ruleAlerts normalize nil slices so stored documents are
// always valid JSON arrays.
func ruleTags(rule *types.Rule) []string {
	if rule.Tags == nil {
		return []string{}
	}
	return rule.Tags
}

func ruleAlerts(rule *types.Rule) []types.AlertConfig {
	if rule.Alerts == nil {
		return []types.AlertConfig{}
	}
	return rule.Alerts
}
