package web

// handlers_common.go holds request parsing helpers shared by the handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// multipartOverhead is allowed on top of the file size limit for form fields.
const multipartOverhead = 1 << 20

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// kindParam reads {kind}. With allowAuto, "auto" yields the empty kind so
// the parser detects it from the headers.
func kindParam(r *http.Request, allowAuto bool) (core.EntityKind, error) {
	raw := chi.URLParam(r, "kind")
	if allowAuto && strings.EqualFold(raw, "auto") {
		return "", nil
	}
	return core.ParseKind(raw)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// uploadForm is a parsed multipart upload.
type uploadForm struct {
	file    multipart.File
	name    string
	mapping map[string]int
}

// parseUploadForm reads the "file" part and the optional JSON "mapping"
// field. The caller closes form.file.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize)
		}
		return nil, badRequest("invalid multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("no file provided")
	}
	if header.Size > maxSize {
		file.Close()
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, header.Size, maxSize)
	}

	form := &uploadForm{file: file, name: header.Filename}
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form.mapping); err != nil {
			file.Close()
			return nil, badRequest("invalid mapping format: %v", err)
		}
	}
	return form, nil
}

// configFormat reads ?format= and defaults to JSON.
func configFormat(r *http.Request) (core.ConfigFormat, error) {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		return core.ConfigJSON, nil
	case "yaml", "yml":
		return core.ConfigYAML, nil
	}
	return "", badRequest("format must be json or yaml")
}
