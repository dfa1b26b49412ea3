package core

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// RulesConfigFileName is the name of the rules document in exports.
const RulesConfigFileName = "rules_config.json"

// ExportMetadata describes an export.
type ExportMetadata struct {
	ExportDate       string `json:"exportDate" yaml:"exportDate"`
	TotalClients     int    `json:"totalClients" yaml:"totalClients"`
	TotalWorkers     int    `json:"totalWorkers" yaml:"totalWorkers"`
	TotalTasks       int    `json:"totalTasks" yaml:"totalTasks"`
	ValidationErrors int    `json:"validationErrors" yaml:"validationErrors"`
}

// ExportHeaders returns the column order used when exporting kind: the
// headers of the upload, followed by any canonical or extra column that has
// a value but was not part of the upload.
func ExportHeaders(kind EntityKind, st *State) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(h string) {
		if h != "" && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}

	for _, h := range st.Headers[kind] {
		add(h)
	}

	records := st.Records(kind)
	present := make(map[string]bool)
	extras := make(map[string]bool)
	for _, rec := range records {
		for k := range rec.Cells() {
			present[k] = true
			extras[k] = true
		}
	}
	if def, ok := Get(kind); ok {
		for _, c := range def.Info.Columns {
			delete(extras, c)
			if present[c] {
				add(c)
			}
		}
	}
	// Extra columns keep a stable order across exports.
	for _, rec := range records {
		for _, h := range slices.Sorted(maps.Keys(rec.Cells())) {
			if extras[h] {
				add(h)
			}
		}
	}
	return out
}

// ExportCSV writes the rows of kind as CSV.
func ExportCSV(w io.Writer, kind EntityKind, st *State) error {
	headers := ExportHeaders(kind, st)
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(headers))
	for i, rec := range st.Records(kind) {
		cells := rec.Cells()
		for j, h := range headers {
			row[j] = cells[h]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildRulesConfig returns the rules document for st: active rules only,
// all priorities and export metadata.
func BuildRulesConfig(st *State, now time.Time) RulesConfig {
	rules := make([]Rule, 0, len(st.Rules))
	for _, r := range st.Rules {
		if r.Active {
			rules = append(rules, r.clone())
		}
	}
	return RulesConfig{
		Rules:      rules,
		Priorities: append([]Priority{}, st.Priorities...),
		Metadata: &ExportMetadata{
			ExportDate:       now.UTC().Format(time.RFC3339),
			TotalClients:     len(st.Clients),
			TotalWorkers:     len(st.Workers),
			TotalTasks:       len(st.Tasks),
			ValidationErrors: len(st.ValidationErrors),
		},
	}
}

// ExportFile is one named file of an export.
type ExportFile struct {
	Name string
	Data []byte
}

// ExportFiles renders the cleaned CSV of every non-empty entity followed by
// the rules document.
func ExportFiles(st *State, now time.Time) ([]ExportFile, error) {
	var files []ExportFile
	for _, def := range All() {
		if st.Len(def.Info.Kind) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := ExportCSV(&buf, def.Info.Kind, st); err != nil {
			return nil, fmt.Errorf("export %s: %w", def.Info.Kind, err)
		}
		files = append(files, ExportFile{Name: def.Info.FileName, Data: buf.Bytes()})
	}

	var buf bytes.Buffer
	if err := WriteRulesConfig(&buf, BuildRulesConfig(st, now), ConfigJSON); err != nil {
		return nil, err
	}
	files = append(files, ExportFile{Name: RulesConfigFileName, Data: buf.Bytes()})
	return files, nil
}

// WriteBundle writes every export file into a zip archive.
func WriteBundle(w io.Writer, st *State, now time.Time) error {
	files, err := ExportFiles(st, now)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("zip %s: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("zip %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

// WriteDir writes every export file into dir, creating it if needed, and
// returns the written paths.
func WriteDir(dir string, st *State, now time.Time) ([]string, error) {
	files, err := ExportFiles(st, now)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.Name)
		if err := os.WriteFile(p, f.Data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
