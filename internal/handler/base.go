// Package handler loads client, worker and task files from disk into a
// core.Store for the command line tools.
package handler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

// LoadTimeout is the maximum duration for loading one set of input files.
// Can be overridden for testing or specific use cases.
var LoadTimeout = 5 * time.Minute

// MaxParallel bounds how many files are parsed at once.
var MaxParallel = 3

// Inputs names the files to load. Paths left empty are skipped.
type Inputs struct {
	Clients string
	Workers string
	Tasks   string

	// Other holds data files whose kind is detected from their headers.
	Other []string

	// Rules is an optional rules_config.json or .yaml file.
	Rules string
}

// Empty reports whether no data or rules file is named.
func (in Inputs) Empty() bool {
	return in.Clients == "" && in.Workers == "" && in.Tasks == "" &&
		len(in.Other) == 0 && in.Rules == ""
}

// Paths lists every named file.
func (in Inputs) Paths() []string {
	var out []string
	for _, p := range []string{in.Clients, in.Workers, in.Tasks} {
		if p != "" {
			out = append(out, p)
		}
	}
	out = append(out, in.Other...)
	if in.Rules != "" {
		out = append(out, in.Rules)
	}
	return out
}

// Loader parses input files into a fresh store.
type Loader struct {
	MaxFileSize  int64 // zero disables the limit
	HistoryLimit int   // zero means core.DefaultHistoryLimit
}

// Result contains the loaded store and what each file produced.
type Result struct {
	Store   *core.Store
	Batches []*core.Batch
	Rules   string
}

// State returns the current store state.
func (r *Result) State() *core.State {
	return r.Store.Current()
}

// FailedRows collects the rows every batch had to skip.
func (r *Result) FailedRows() []core.FailedRow {
	var out []core.FailedRow
	for _, b := range r.Batches {
		out = append(out, b.FailedRows...)
	}
	return out
}

// IsDataFile reports whether name has a parseable data extension.
func IsDataFile(name string) bool {
	_, err := core.DetectFormat(name)
	return err == nil && !strings.EqualFold(filepath.Ext(name), ".txt")
}

// IsRulesFile reports whether name is a rules config document.
func IsRulesFile(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	stem := strings.TrimSuffix(core.RulesConfigFileName, filepath.Ext(core.RulesConfigFileName))
	switch base {
	case stem + ".json", stem + ".yaml", stem + ".yml":
		return true
	}
	return false
}

// IsInputFile reports whether name is a rules config or a data file the
// loader should read. Files this tool writes are not inputs.
func IsInputFile(name string) bool {
	if IsRulesFile(name) {
		return true
	}
	base := strings.ToLower(filepath.Base(name))
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, " - failed.csv") || !IsDataFile(base) {
		return false
	}
	for _, def := range core.All() {
		if strings.EqualFold(def.Info.FileName, base) {
			return false
		}
	}
	return true
}

// ScanDir finds input files in dir. Files named after an entity
// ("clients.csv", "Workers 2024.xlsx") are assigned that kind; other data
// files are detected from their headers on load.
func ScanDir(dir string) (Inputs, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Inputs{}, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var in Inputs
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		full := filepath.Join(dir, name)
		lower := strings.ToLower(name)

		switch {
		case IsRulesFile(name):
			if in.Rules != "" {
				return Inputs{}, fmt.Errorf("more than one rules config in %s", dir)
			}
			in.Rules = full
		case !IsInputFile(name):
			continue
		default:
			kind, ok := kindFromName(lower)
			if !ok {
				in.Other = append(in.Other, full)
				continue
			}
			slot := in.slot(kind)
			if *slot != "" {
				return Inputs{}, fmt.Errorf("more than one %s file in %s", kind, dir)
			}
			*slot = full
		}
	}
	return in, nil
}

func (in *Inputs) slot(kind core.EntityKind) *string {
	switch kind {
	case core.KindClients:
		return &in.Clients
	case core.KindWorkers:
		return &in.Workers
	default:
		return &in.Tasks
	}
}

func kindFromName(lower string) (core.EntityKind, bool) {
	for _, kind := range core.Kinds() {
		singular := strings.TrimSuffix(string(kind), "s")
		if strings.HasPrefix(lower, singular) {
			return kind, true
		}
	}
	return "", false
}
