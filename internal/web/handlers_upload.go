package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/datacleaner/internal/core"
	"github.com/JonMunkholm/datacleaner/internal/logging"
)

// handleUpload parses a multipart file and replaces the session's rows of
// that kind. {kind} may be "auto" to detect the entity from the headers.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.receiveFile(w, r, s.service.Upload)
}

// handlePreview parses and validates a file without changing the session.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.receiveFile(w, r, s.service.Preview)
}

type uploadFunc func(ctx context.Context, id string, req core.UploadRequest) (*core.UploadResult, error)

func (s *Server) receiveFile(w http.ResponseWriter, r *http.Request, run uploadFunc) {
	id := sessionID(r)
	kind, err := kindParam(r, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	form, err := s.parseUploadForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer form.file.Close()

	logging.WithFields(r.Context(), "session_id", id, "file", form.name).
		Debug("upload received", "kind", kind, "mapped_columns", len(form.mapping))

	result, err := run(r.Context(), id, core.UploadRequest{
		Kind:     kind,
		FileName: form.name,
		Body:     form.file,
		Mapping:  form.mapping,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
