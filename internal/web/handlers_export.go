package web

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

// handleExportBundle streams the zip of cleaned CSVs and rules_config.json.
func (s *Server) handleExportBundle(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	// Buffered so a failure can still produce an error response.
	var buf bytes.Buffer
	if err := s.service.ExportBundle(id, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, "application/zip", "datacleaner-export.zip", buf.Bytes())
}

// handleExportFile serves one export file: "<kind>.csv", the entity's export
// name such as "clients_cleaned.csv", or rules_config.json / .yaml.
func (s *Server) handleExportFile(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	name := chi.URLParam(r, "file")
	ext := strings.ToLower(path.Ext(name))
	base := strings.TrimSuffix(name, path.Ext(name))

	var buf bytes.Buffer
	switch {
	case base == strings.TrimSuffix(core.RulesConfigFileName, ".json"):
		format := core.ConfigFormatFor(name)
		if ext != ".json" && format != core.ConfigYAML {
			s.fail(w, r, badRequest("unknown export file %q", name))
			return
		}
		if err := s.service.ExportRules(id, &buf, format); err != nil {
			s.fail(w, r, err)
			return
		}
		contentType := "application/json"
		if format == core.ConfigYAML {
			contentType = "application/yaml"
		}
		writeAttachment(w, contentType, name, buf.Bytes())

	case ext == ".csv":
		kind, err := exportKind(name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.service.ExportCSV(id, kind, &buf); err != nil {
			s.fail(w, r, err)
			return
		}
		def, _ := core.Get(kind)
		writeAttachment(w, "text/csv; charset=utf-8", def.Info.FileName, buf.Bytes())

	default:
		s.fail(w, r, badRequest("unknown export file %q", name))
	}
}

// exportKind resolves "tasks.csv" and "tasks_cleaned.csv" alike.
func exportKind(name string) (core.EntityKind, error) {
	for _, def := range core.All() {
		if strings.EqualFold(def.Info.FileName, name) {
			return def.Info.Kind, nil
		}
	}
	return core.ParseKind(strings.TrimSuffix(name, path.Ext(name)))
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
