// Package store persists qualification rules.
//
// Two implementations share one contract: a SQL store (sqlx + dotsql,
// SQLite or PostgreSQL) for deployments and an in-memory store for tests
// and embedding. Writes use optimistic concurrency: an update carries the
// version the caller last read, and a mismatch returns
// *types.VersionConflictError without modifying anything. The engine never
// retries; the caller re-fetches and decides.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leadworks/qualifier/internal/types"
)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status  types.Status
	Journey string
	Tag     string
}

// matches reports whether a rule passes the filter.
func (f ListFilter) matches(r *types.Rule) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Journey != "" && r.Journey != f.Journey {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range r.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RuleStore is the persistence contract for qualification rules.
type RuleStore interface {
	// Create persists a new rule and returns its ID. The rule's version
	// must be 1; the store rejects duplicates by ID.
	Create(ctx context.Context, rule *types.Rule) (types.RuleID, error)

	// Update replaces a rule's content. expectedVersion must equal the
	// stored version or the call fails with *types.VersionConflictError.
	// Returns the new version on success.
	Update(ctx context.Context, id types.RuleID, expectedVersion int64, rule *types.Rule) (int64, error)

	// Get returns the rule or types.ErrRuleNotFound.
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)

	// List returns rules passing the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*types.Rule, error)

	// Delete removes the rule. Deleting an unknown ID returns
	// types.ErrRuleNotFound.
	Delete(ctx context.Context, id types.RuleID) error

	// SetStatus records a lifecycle transition and its RFC 3339 UTC
	// timestamp. Transitions do not touch the version, so no expected
	// version is taken.
	SetStatus(ctx context.Context, id types.RuleID, status types.Status, updatedAt string) error

	// SetMatchCount records an advisory match volume.
	SetMatchCount(ctx context.Context, id types.RuleID, count int64) error
}

// Memory is an in-memory RuleStore safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	rules map[types.RuleID]*types.Rule
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rules: make(map[types.RuleID]*types.Rule)}
}

// Create implements RuleStore.
func (m *Memory) Create(ctx context.Context, rule *types.Rule) (types.RuleID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.RuleID]; exists {
		return "", &types.VersionConflictError{RuleID: rule.RuleID, Expected: 0, Actual: m.rules[rule.RuleID].Version}
	}
	m.rules[rule.RuleID] = rule.Clone()
	return rule.RuleID, nil
}

// Update implements RuleStore.
func (m *Memory) Update(ctx context.Context, id types.RuleID, expectedVersion int64, rule *types.Rule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.rules[id]
	if !exists {
		return 0, types.ErrRuleNotFound
	}
	if current.Version != expectedVersion {
		return 0, &types.VersionConflictError{RuleID: id, Expected: expectedVersion, Actual: current.Version}
	}

	stored := rule.Clone()
	stored.RuleID = id
	stored.CreatedAt = current.CreatedAt
	stored.CreatedBy = current.CreatedBy
	m.rules[id] = stored
	return stored.Version, nil
}

// Get implements RuleStore.
func (m *Memory) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, exists := m.rules[id]
	if !exists {
		return nil, types.ErrRuleNotFound
	}
	return rule.Clone(), nil
}

// List implements RuleStore.
func (m *Memory) List(ctx context.Context, filter ListFilter) ([]*types.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Rule
	for _, rule := range m.rules {
		if filter.matches(rule) {
			out = append(out, rule.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RuleID > out[j].RuleID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete implements RuleStore.
func (m *Memory) Delete(ctx context.Context, id types.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[id]; !exists {
		return types.ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// SetStatus implements RuleStore.
func (m *Memory) SetStatus(ctx context.Context, id types.RuleID, status types.Status, updatedAt string) error {
	stamp, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to parse updated_at: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rule, exists := m.rules[id]
	if !exists {
		return types.ErrRuleNotFound
	}
	rule.Status = status
	rule.UpdatedAt = stamp
	return nil
}

// SetMatchCount implements RuleStore.
func (m *Memory) SetMatchCount(ctx context.Context, id types.RuleID, count int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, exists := m.rules[id]
	if !exists {
		return types.ErrRuleNotFound
	}
	rule.MatchCount = count
	return nil
}
