// Package api provides the HTTP admin surface for qualification rules:
// CRUD, lifecycle transitions, batch preview, and read-only catalog
// listings for authoring UIs.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/core/config"
	"github.com/leadworks/qualifier/internal/core/store"
	"github.com/leadworks/qualifier/internal/lifecycle"
	"github.com/leadworks/qualifier/internal/rules"
	"github.com/leadworks/qualifier/internal/types"
)

// Service wires the rule store, operand catalog, and lifecycle manager
// behind an HTTP router. Thin orchestration layer: domain decisions live
// in internal/rules and internal/lifecycle.
type Service struct {
	store store.RuleStore
	cat   catalog.Source
	cfg   *config.APIConfig
	log   *slog.Logger
}

// NewService creates the API service.
func NewService(ruleStore store.RuleStore, cat catalog.Source, cfg *config.APIConfig, log *slog.Logger) (*Service, error) {
	if ruleStore == nil {
		return nil, errors.New("rule store cannot be nil")
	}
	if cat == nil {
		return nil, errors.New("catalog source cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: ruleStore, cat: cat, cfg: cfg, log: log}, nil
}

// Router builds the chi router with all routes mounted.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Post("/", s.handleCreateRule)
			r.Get("/", s.handleListRules)
			r.Route("/{ruleID}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
				r.Post("/status", s.handleTransition)
				r.Post("/preview", s.handlePreview)
			})
		})
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/attributes", s.handleListAttributes)
			r.Get("/events", s.handleListEvents)
			r.Get("/operators", s.handleListOperators)
		})
	})

	return r
}

// manager builds a lifecycle manager over the current catalog snapshot.
func (s *Service) manager(snap *catalog.Snapshot) *lifecycle.Manager {
	return lifecycle.NewManager(snap, s.compileOptions(), nil)
}

func (s *Service) compileOptions() rules.CompileOptions {
	return rules.CompileOptions{MaxDepth: s.cfg.MaxGroupDepth}
}

// evalOptions relaxes compilation for stored rules. Their trees passed
// strict validation when saved, so any failure now is catalog drift and
// degrades per condition instead of failing the request.
func (s *Service) evalOptions() rules.CompileOptions {
	opts := s.compileOptions()
	opts.Lenient = true
	return opts
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response body with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a domain error onto an HTTP status:
// structural/validation failures are 422 (the author must fix the rule),
// version conflicts and illegal transitions are 409 (the caller must
// re-fetch), unknown rules are 404.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	var structural *types.StructuralError
	var validation *types.ValidationError
	var conflict *types.VersionConflictError

	switch {
	case errors.As(err, &structural), errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrRuleNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		s.log.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decodeJSON decodes a request body, rejecting unknown fields so typos in
// authoring payloads surface as 400s instead of silently dropped content.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
