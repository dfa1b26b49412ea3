package entities

import (
	"github.com/JonMunkholm/datacleaner/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

// row reads cleaned cells and remembers which canonical names were consumed
// so the rest can be kept as extra columns.
type row struct {
	cells core.Cells
	used  map[string]bool
}

func newRow(cells core.Cells) *row {
	return &row{cells: cells, used: make(map[string]bool, len(cells))}
}

func (r *row) text(name string) string {
	r.used[name] = true
	return r.cells[name]
}

func (r *row) int4(name string) pgtype.Int4 {
	r.used[name] = true
	v, ok := r.cells[name]
	if !ok {
		return pgtype.Int4{}
	}
	return core.ParseInt4(v)
}

// list returns nil when the column is absent and an empty slice when it is
// present but holds no items.
func (r *row) list(name string) []string {
	r.used[name] = true
	v, ok := r.cells[name]
	if !ok {
		return nil
	}
	items := core.SplitList(v)
	if items == nil {
		return []string{}
	}
	return items
}

func (r *row) phases(name string) []int {
	r.used[name] = true
	v, ok := r.cells[name]
	if !ok {
		return nil
	}
	return core.ParsePhases(v)
}

// extra returns the cells no accessor consumed, or nil when there are none.
func (r *row) extra() map[string]string {
	var out map[string]string
	for k, v := range r.cells {
		if r.used[k] {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}
