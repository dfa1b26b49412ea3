package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/datacleaner/internal/core"
	"github.com/JonMunkholm/datacleaner/internal/web/views"
)

func entityInfos() []core.EntityInfo {
	out := make([]core.EntityInfo, 0, core.EntityCount())
	for _, def := range core.All() {
		out = append(out, def.Info)
	}
	return out
}

func (s *Server) statusData() views.StatusData {
	return views.StatusData{
		Now:         time.Now(),
		StoreDriver: s.cfg.Store.Driver,
		Entities:    entityInfos(),
		Sessions:    s.service.Sessions(),
		Uploads:     s.service.UploadStatus(),
	}
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.StatusPage(s.statusData()).Render(r.Context(), w); err != nil {
		s.fail(w, r, err)
	}
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.service.SessionCount(),
	})
}

// StatusResponse is the JSON form of the status page.
type StatusResponse struct {
	StoreDriver string                   `json:"storeDriver"`
	Sessions    int                      `json:"sessions"`
	Uploads     core.UploadLimiterStatus `json:"uploads"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		StoreDriver: s.cfg.Store.Driver,
		Sessions:    s.service.SessionCount(),
		Uploads:     s.service.UploadStatus(),
	})
}

// handleEntities lists the registered entity kinds and their columns.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, entityInfos())
}
