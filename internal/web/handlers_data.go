package web

import (
	"net/http"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := s.service.Data(sessionID(r), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// handleEditRow merges a {"column": "value"} patch into one row. An empty
// value clears the field.
func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	kind, err := kindParam(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := intParam(r, "row")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var patch map[string]string
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	if _, err := s.service.Edit(r.Context(), id, kind, row, patch); err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := s.service.Data(id, kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ValidationResponse lists the session's findings.
type ValidationResponse struct {
	Errors   []core.ValidationError `json:"errors"`
	Summary  core.Summary           `json:"summary"`
	Blocking bool                   `json:"blocking"`
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	errs, summary, err := s.service.Validation(sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{
		Errors:   errs,
		Summary:  summary,
		Blocking: core.HasBlockingErrors(errs),
	})
}

func (s *Server) handleSuggestFixes(w http.ResponseWriter, r *http.Request) {
	fixes, err := s.service.SuggestFixes(sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fixes)
}

type applyFixesRequest struct {
	Kinds []string `json:"kinds"`
}

// handleApplyFixes runs the named fixes, or all of them when none are named.
func (s *Server) handleApplyFixes(w http.ResponseWriter, r *http.Request) {
	var req applyFixesRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	kinds := make([]core.FixKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kind, err := core.ParseFixKind(k)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		kinds = core.FixKinds()
	}

	id := sessionID(r)
	changed, err := s.service.ApplyFixes(r.Context(), id, kinds)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	errs, summary, err := s.service.Validation(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rowsChanged": changed,
		"summary":     summary,
		"blocking":    core.HasBlockingErrors(errs),
	})
}
