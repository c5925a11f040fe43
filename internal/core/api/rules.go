package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leadworks/qualifier/internal/core/store"
	"github.com/leadworks/qualifier/internal/rules"
	"github.com/leadworks/qualifier/internal/types"
)

// createRuleRequest is the authoring payload for a new rule. Status and
// version are server-assigned; a new rule is always a draft at version 1.
type createRuleRequest struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Journey         string                 `json:"journey,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	RootOperator    types.LogicOperator    `json:"root_operator,omitempty"`
	ConditionGroups []types.ConditionGroup `json:"condition_groups,omitempty"`
	Alerts          []types.AlertConfig    `json:"alerts,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
}

func (s *Service) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Name == "" || len(req.Name) > types.MaxNameLength {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "name is required and bounded"})
		return
	}
	if len(req.Tags) > types.MaxTags {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "too many tags"})
		return
	}

	draft := &types.Rule{
		Name:            req.Name,
		Description:     req.Description,
		Journey:         req.Journey,
		Tags:            req.Tags,
		RootOperator:    req.RootOperator,
		ConditionGroups: req.ConditionGroups,
		Alerts:          req.Alerts,
	}

	snap, err := s.cat.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Drafts may be saved without groups, but any group present must be
	// structurally valid
	if _, err := rules.Compile(draft, snap, s.compileOptions()); err != nil {
		s.writeError(w, err)
		return
	}

	rule := s.manager(snap).NewRule(draft, req.CreatedBy)
	if _, err := s.store.Create(r.Context(), rule); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (s *Service) handleListRules(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{
		Status:  types.Status(r.URL.Query().Get("status")),
		Journey: r.URL.Query().Get("journey"),
		Tag:     r.URL.Query().Get("tag"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status filter"})
		return
	}

	list, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []*types.Rule{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		return
	}
	rule, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// updateRuleRequest is a content edit. expected_version carries the
// version the author last read; a stale value yields 409.
type updateRuleRequest struct {
	ExpectedVersion int64                  `json:"expected_version"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description,omitempty"`
	Journey         string                 `json:"journey,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	RootOperator    types.LogicOperator    `json:"root_operator,omitempty"`
	ConditionGroups []types.ConditionGroup `json:"condition_groups,omitempty"`
	Alerts          []types.AlertConfig    `json:"alerts,omitempty"`
}

func (s *Service) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		return
	}

	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Name == "" || len(req.Name) > types.MaxNameLength {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "name is required and bounded"})
		return
	}

	current, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if current.Version != req.ExpectedVersion {
		s.writeError(w, &types.VersionConflictError{
			RuleID:   id,
			Expected: req.ExpectedVersion,
			Actual:   current.Version,
		})
		return
	}

	snap, err := s.cat.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	edit := &types.Rule{
		Name:            req.Name,
		Description:     req.Description,
		Journey:         req.Journey,
		Tags:            req.Tags,
		RootOperator:    req.RootOperator,
		ConditionGroups: req.ConditionGroups,
		Alerts:          req.Alerts,
	}

	updated, err := s.manager(snap).ApplyEdit(current, edit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The store re-checks the version atomically; the fast-fail above only
	// improves the error for the common stale-read case.
	if _, err := s.store.Update(r.Context(), id, req.ExpectedVersion, updated); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transitionRequest names the target lifecycle state.
type transitionRequest struct {
	Target types.Status `json:"target"`
}

func (s *Service) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	current, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.cat.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	updated, err := s.manager(snap).Transition(current, req.Target)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if updated.Status != current.Status {
		stamp := updated.UpdatedAt.UTC().Format(time.RFC3339)
		if err := s.store.SetStatus(r.Context(), id, updated.Status, stamp); err != nil {
			s.writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, updated)
}

// previewRequest carries candidate records for batch evaluation. "now"
// defaults to the server clock; tests and replays may pin it.
type previewRequest struct {
	Records []types.Record `json:"records"`
	Now     *time.Time     `json:"now,omitempty"`
}

// previewResponse returns the matching subset in input order plus
// per-record traces and the alert thresholds the volume crossed.
type previewResponse struct {
	Matched         []types.Record      `json:"matched"`
	Results         []rules.MatchResult `json:"results"`
	MatchCount      int64               `json:"match_count"`
	TriggeredAlerts []types.AlertConfig `json:"triggered_alerts,omitempty"`
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "rule not found"})
		return
	}

	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if len(req.Records) > s.cfg.MaxPreviewBatch {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "preview batch exceeds maximum size"})
		return
	}

	rule, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.cat.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	compiled, err := rules.Compile(rule, snap, s.evalOptions())
	if err != nil {
		s.writeError(w, err)
		return
	}

	now := time.Now().UTC()
	if req.Now != nil {
		now = req.Now.UTC()
	}

	evaluator := rules.NewEvaluator(snap, s.log)
	matched, results := evaluator.EvaluateBatch(compiled, req.Records, now)

	matchCount := int64(len(matched))
	if err := s.store.SetMatchCount(r.Context(), id, matchCount); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Matched:         matched,
		Results:         results,
		MatchCount:      matchCount,
		TriggeredAlerts: rules.TriggeredAlerts(rule, matchCount),
	})
}
