package web

import (
	"net/http"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.CreateSession(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+info.ID)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Session(sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSession(r.Context(), sessionID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := s.service.Save(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "saved"})
}

func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Restore(r.Context(), sessionID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// historyResponse reports whether an undo or redo moved the session.
type historyResponse struct {
	Changed bool `json:"changed"`
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.stepHistory(w, r, s.service.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.stepHistory(w, r, s.service.Redo)
}

func (s *Server) stepHistory(w http.ResponseWriter, r *http.Request, step func(string) (bool, error)) {
	id := sessionID(r)
	changed, err := step(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	info, err := s.service.Session(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Changed: changed, CanUndo: info.CanUndo, CanRedo: info.CanRedo})
}
