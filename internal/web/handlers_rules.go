package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.service.Rules(sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

type addRuleRequest struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Parameters core.RuleParams `json:"parameters"`
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	typ, err := core.ParseRuleType(req.Type)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rule, err := s.service.AddRule(r.Context(), sessionID(r), typ, req.Name, req.Parameters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule core.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		s.fail(w, r, err)
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")
	typ, err := core.ParseRuleType(string(rule.Type))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rule.Type = typ

	updated, err := s.service.UpdateRule(r.Context(), sessionID(r), rule)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.service.ToggleRule(r.Context(), sessionID(r), chi.URLParam(r, "ruleID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleImportRules replaces the session's rules with a rules config in the
// request body. YAML is chosen by ?format=yaml or a yaml Content-Type.
func (s *Server) handleImportRules(w http.ResponseWriter, r *http.Request) {
	format, err := configFormat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = core.ConfigYAML
	}

	st, err := s.service.ImportRules(r.Context(), sessionID(r), http.MaxBytesReader(w, r.Body, maxJSONBody), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":      st.Rules,
		"priorities": st.Priorities,
	})
}

func (s *Server) handleGetPriorities(w http.ResponseWriter, r *http.Request) {
	ps, err := s.service.Priorities(sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleSetPriorities(w http.ResponseWriter, r *http.Request) {
	var ps []core.Priority
	if err := decodeJSON(w, r, &ps); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.SetPriorities(r.Context(), sessionID(r), ps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	out, err := s.service.ApplyPreset(r.Context(), sessionID(r), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type reorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (s *Server) handleReorderPriorities(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.service.ReorderPriorities(r.Context(), sessionID(r), req.From, req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Presets())
}
