package core

// parse.go turns uploaded CSV and XLSX files into typed records.
//
// Parsing happens in three steps:
//  1. Rows are read (encoding/csv or excelize) through the clean reader chain
//  2. Headers are mapped to canonical field names (explicit mapping first,
//     then exact normalized match, then character-overlap similarity)
//  3. Each row is cleaned cell by cell and decoded by the entity definition
//
// Rows whose cell count does not match the header are skipped and reported
// as FailedRows; nothing is validated here beyond shape.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// HeaderMatchThreshold is the similarity a header must exceed to be mapped
// to a canonical name by fuzzy matching.
const HeaderMatchThreshold = 0.7

// KindDetectThreshold is the share of an entity's canonical columns that must
// be present for its kind to be detected from headers alone.
const KindDetectThreshold = 0.7

var (
	// ErrNoData is returned for files without a header and at least one data row.
	ErrNoData = errors.New("file must contain headers and at least one data row")

	// ErrUnsupportedFormat is returned for file extensions other than CSV/XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnknownHeaders is returned when no entity kind matches the headers.
	ErrUnknownHeaders = errors.New("could not detect entity type from headers")
)

// Format is an accepted upload file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseOptions controls how a file is mapped to records.
type ParseOptions struct {
	// Kind of the records; empty means detect from headers.
	Kind EntityKind

	// FileName is used for format detection and failed-row reporting.
	FileName string

	// Mapping overrides header matching: canonical name -> column index.
	Mapping map[string]int

	// MaxBytes limits the raw file size; zero disables the limit.
	MaxBytes int64
}

// DetectFormat chooses the parser from a file name's extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q (use .csv or .xlsx)", ErrUnsupportedFormat, filepath.Base(filename))
}

// ParseFile parses r as CSV or XLSX depending on opts.FileName.
func ParseFile(r io.Reader, opts ParseOptions) (*Batch, error) {
	format, err := DetectFormat(opts.FileName)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ParseXLSX(r, opts)
	}
	return ParseCSV(r, opts)
}

// ParseCSV parses comma-separated data.
func ParseCSV(r io.Reader, opts ParseOptions) (*Batch, error) {
	cr := csv.NewReader(NewCleanReader(r, opts.MaxBytes))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		rows  [][]string
		lines []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, rec)
		lines = append(lines, line)
	}

	return buildBatch(rows, lines, opts, false)
}

// ParseXLSX parses the first sheet of an Excel workbook.
func ParseXLSX(r io.Reader, opts ParseOptions) (*Batch, error) {
	f, err := excelize.OpenReader(LimitReader(r, opts.MaxBytes))
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoData
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}

	// excelize trims trailing empty cells, so short rows are padded.
	return buildBatch(rows, lines, opts, true)
}

func buildBatch(rows [][]string, lines []int, opts ParseOptions, padShort bool) (*Batch, error) {
	var (
		data      [][]string
		dataLines []int
	)
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		data = append(data, row)
		dataLines = append(dataLines, lines[i])
	}
	if len(data) < 2 {
		return nil, ErrNoData
	}

	rawHeaders := make([]string, len(data[0]))
	for i, h := range data[0] {
		rawHeaders[i] = CleanCell(h)
	}

	headers := MapHeaders(rawHeaders, opts.Kind, opts.Mapping)

	kind := opts.Kind
	if kind == "" {
		detected, err := DetectKind(headers)
		if err != nil {
			return nil, err
		}
		kind = detected
	}

	def, err := MustGet(kind)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		Kind:       kind,
		FileName:   opts.FileName,
		RawHeaders: rawHeaders,
		Headers:    headers,
		Records:    make([]Record, 0, len(data)-1),
	}

	for i, row := range data[1:] {
		line := dataLines[i+1]
		if padShort && len(row) < len(headers) {
			padded := make([]string, len(headers))
			copy(padded, row)
			row = padded
		}
		if len(row) != len(headers) {
			batch.FailedRows = append(batch.FailedRows, FailedRow{
				FileName:   opts.FileName,
				LineNumber: line,
				Reason:     fmt.Sprintf("expected %d values, got %d", len(headers), len(row)),
				Data:       row,
			})
			continue
		}

		cells := make(Cells, len(headers))
		for col, name := range headers {
			v := CleanCell(row[col])
			if IsMissing(v) {
				continue
			}
			if _, dup := cells[name]; dup {
				continue
			}
			cells[name] = v
		}
		batch.Records = append(batch.Records, def.Decode(cells))
	}

	return batch, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// MapHeaders maps raw headers to canonical names.
//
// An explicit mapping (canonical name -> column index) wins. Remaining
// headers are matched against every registered entity's canonical names:
// an exact normalized match first, then the best similarity above
// HeaderMatchThreshold. The given kind's names are tried before the others.
// Unmatched headers are kept as-is and become extra columns; a blank header
// is named after its 1-based position ("Column8").
func MapHeaders(raw []string, kind EntityKind, mapping map[string]int) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool)

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		idx := mapping[name]
		if idx < 0 || idx >= len(raw) || out[idx] != "" || used[name] {
			continue
		}
		out[idx] = name
		used[name] = true
	}

	candidates := canonicalCandidates(kind)
	for i, h := range raw {
		if out[i] != "" {
			continue
		}
		if name, ok := matchHeader(h, candidates, used); ok {
			out[i] = name
			used[name] = true
			continue
		}
		if out[i] = CleanCell(h); out[i] == "" {
			out[i] = fmt.Sprintf("Column%d", i+1)
		}
	}
	return out
}

// canonicalCandidates lists canonical names with kind's own names first.
func canonicalCandidates(kind EntityKind) []string {
	defs := All()
	var first, rest []string
	for _, d := range defs {
		if d.Info.Kind == kind {
			first = append(first, d.Info.Columns...)
		} else {
			rest = append(rest, d.Info.Columns...)
		}
	}
	return append(first, rest...)
}

func matchHeader(h string, candidates []string, used map[string]bool) (string, bool) {
	norm := NormalizeHeader(h)
	if norm == "" {
		return "", false
	}

	for _, c := range candidates {
		if !used[c] && NormalizeHeader(c) == norm {
			return c, true
		}
	}

	best, bestScore := "", HeaderMatchThreshold
	for _, c := range candidates {
		if used[c] {
			continue
		}
		if score := HeaderSimilarity(norm, NormalizeHeader(c)); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, best != ""
}

// DetectKind picks the entity kind whose canonical columns best cover the
// (already mapped) headers. When no kind reaches KindDetectThreshold, a
// unique identifier column decides.
func DetectKind(headers []string) (EntityKind, error) {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	var (
		bestKind  EntityKind
		bestScore float64
		idMatches []EntityKind
	)
	for _, def := range All() {
		if len(def.Info.Columns) == 0 {
			continue
		}
		matched := 0
		for _, c := range def.Info.Columns {
			if present[c] {
				matched++
			}
		}
		score := float64(matched) / float64(len(def.Info.Columns))
		if score > bestScore {
			bestKind, bestScore = def.Info.Kind, score
		}
		if present[def.Info.IDField] {
			idMatches = append(idMatches, def.Info.Kind)
		}
	}

	if bestScore >= KindDetectThreshold {
		return bestKind, nil
	}
	if len(idMatches) == 1 {
		return idMatches[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownHeaders, strings.Join(headers, ", "))
}
