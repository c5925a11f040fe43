package api

import (
	"net/http"
	"sort"

	"github.com/leadworks/qualifier/internal/catalog"
	"github.com/leadworks/qualifier/internal/rules"
	"github.com/leadworks/qualifier/internal/types"
)

func (s *Service) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := s.cat.ListAttributes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if attrs == nil {
		attrs = []catalog.AttributeDef{}
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	writeJSON(w, http.StatusOK, attrs)
}

func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.cat.ListEvents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []catalog.EventDef{}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Name < events[j].Name })
	writeJSON(w, http.StatusOK, events)
}

// operatorInfo pairs an operator with its display label.
type operatorInfo struct {
	Operator types.Operator `json:"operator"`
	Label    string         `json:"label"`
}

// handleListOperators returns the legal operator set per value type so the
// authoring UI can populate its operator pickers from the same table the
// engine validates against.
func (s *Service) handleListOperators(w http.ResponseWriter, r *http.Request) {
	out := make(map[types.ValueType][]operatorInfo)
	for _, vt := range []types.ValueType{types.ValueString, types.ValueNumber, types.ValueBoolean, types.ValueDate} {
		for _, op := range rules.OperatorsFor(vt) {
			out[vt] = append(out[vt], operatorInfo{Operator: op, Label: rules.OperatorLabel(op)})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
