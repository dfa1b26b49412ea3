package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

type fileJob struct {
	path string
	kind core.EntityKind // empty means detect from headers
}

/* ----------------------------------------
	Main entry for loading
---------------------------------------- */

// Load parses every input file and dispatches the records, then the rules
// config, into a new store. Files are parsed concurrently; the store sees
// them in registry order so the history is the same on every run.
func (l *Loader) Load(ctx context.Context, in Inputs) (*Result, error) {
	if in.Empty() {
		return nil, errors.New("no input files")
	}

	ctx, cancel := context.WithTimeout(ctx, LoadTimeout)
	defer cancel()

	jobs := make([]fileJob, 0, 3+len(in.Other))
	for _, j := range []fileJob{
		{in.Clients, core.KindClients},
		{in.Workers, core.KindWorkers},
		{in.Tasks, core.KindTasks},
	} {
		if j.path != "" {
			jobs = append(jobs, j)
		}
	}
	for _, p := range in.Other {
		jobs = append(jobs, fileJob{path: p})
	}

	batches := make([]*core.Batch, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxParallel)
	for i, job := range jobs {
		g.Go(func() error {
			b, err := l.parseFile(gctx, job)
			if err != nil {
				return err
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("load timed out after %v", LoadTimeout)
		}
		return nil, err
	}

	byKind := make(map[core.EntityKind]*core.Batch, len(batches))
	for _, b := range batches {
		if prev, ok := byKind[b.Kind]; ok {
			return nil, fmt.Errorf("both %s and %s contain %s", filepath.Base(prev.FileName), filepath.Base(b.FileName), b.Kind)
		}
		byKind[b.Kind] = b
	}

	store := core.NewStore(l.HistoryLimit)
	result := &Result{Store: store}
	for _, kind := range core.Kinds() {
		b, ok := byKind[kind]
		if !ok {
			continue
		}
		action, err := core.ReplaceRecords(b.Kind, b.Records, b.Headers)
		if err != nil {
			return nil, err
		}
		if _, err := store.Dispatch(ctx, action); err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(b.FileName), err)
		}
		result.Batches = append(result.Batches, b)
	}

	if in.Rules != "" {
		if err := loadRules(ctx, store, in.Rules); err != nil {
			return nil, err
		}
		result.Rules = in.Rules
	}

	st := store.Current()
	slog.DebugContext(ctx, "inputs loaded",
		"files", len(result.Batches),
		"clients", len(st.Clients),
		"workers", len(st.Workers),
		"tasks", len(st.Tasks),
		"rules", len(st.Rules),
		"findings", len(st.ValidationErrors),
	)
	return result, nil
}

func (l *Loader) parseFile(ctx context.Context, job fileJob) (*core.Batch, error) {
	f, err := os.Open(job.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", job.path, err)
	}
	defer f.Close()

	start := time.Now()
	b, err := core.ParseFile(core.ContextReader(ctx, f), core.ParseOptions{
		Kind:     job.kind,
		FileName: filepath.Base(job.path),
		MaxBytes: l.MaxFileSize,
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(job.path), err)
	}
	b.FileName = job.path

	slog.DebugContext(ctx, "file parsed",
		"file", job.path,
		"kind", b.Kind,
		"rows", len(b.Records),
		"failed_rows", len(b.FailedRows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

func loadRules(ctx context.Context, store *core.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := core.ReadRulesConfig(f, core.ConfigFormatFor(path))
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if _, err := store.Dispatch(ctx, core.ImportRulesConfig{Rules: cfg.Rules, Priorities: cfg.Priorities}); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

/* ----------------------------------------
	Failed rows
---------------------------------------- */

// FailedRowsPath returns where the skipped rows of source are written:
// "<name> - failed.csv" next to it.
func FailedRowsPath(source string) string {
	dir, file := filepath.Split(source)
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	return filepath.Join(dir, fmt.Sprintf("%s - failed.csv", stem))
}

// WriteFailedRows writes the rows a batch skipped, each prefixed with its line
// number and the reason, and returns the file path. Nothing is written when
// the batch had no failures.
func WriteFailedRows(b *core.Batch) (string, error) {
	if len(b.FailedRows) == 0 {
		return "", nil
	}

	path := FailedRowsPath(b.FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed writing failure file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"line", "reason"}, b.RawHeaders...)); err != nil {
		return "", err
	}
	for _, row := range b.FailedRows {
		if err := w.Write(rowFailed(row)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed writing failure file: %w", err)
	}
	return path, f.Close()
}

func rowFailed(row core.FailedRow) []string {
	return append([]string{strconv.Itoa(row.LineNumber), row.Reason}, row.Data...)
}
