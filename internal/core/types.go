// Package core provides the business logic for cleaning client, worker and task data.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// EntityKind identifies one of the uploadable record types.
type EntityKind string

const (
	KindClients EntityKind = "clients"
	KindWorkers EntityKind = "workers"
	KindTasks   EntityKind = "tasks"
)

// ErrUnknownEntity is returned when an entity kind is not registered.
var ErrUnknownEntity = errors.New("unknown entity")

// ParseKind converts a user-supplied name ("clients", "Workers", "task") to an EntityKind.
func ParseKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clients", "client":
		return KindClients, nil
	case "workers", "worker":
		return KindWorkers, nil
	case "tasks", "task":
		return KindTasks, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// FieldType represents how a raw cell is coerced for a canonical field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInteger
	FieldList
	FieldPhases
	FieldJSON
)

// FieldSpec describes a single canonical column.
type FieldSpec struct {
	Name     string    // Canonical header name
	Type     FieldType // Coercion applied by the parser
	Required bool      // Reported as missing by the validator when absent
}

// EntityInfo contains display information about an entity kind.
type EntityInfo struct {
	Kind     EntityKind
	Label    string   // Display name: "Clients"
	FileName string   // Export file name: "clients_cleaned.csv"
	IDField  string   // Canonical name of the identifier column
	Order    int      // Position in header matching and export order
	Columns  []string // Canonical header names, filled from FieldSpecs
}

// Cells maps canonical (or extra) header names to raw cell strings.
type Cells map[string]string

// DecodeFunc builds a record from cleaned cells.
// Keys that are not canonical fields must end up in the record's Extra map.
type DecodeFunc func(cells Cells) Record

// EntityDefinition contains everything needed to parse and export one entity kind.
type EntityDefinition struct {
	Info       EntityInfo
	FieldSpecs []FieldSpec
	Decode     DecodeFunc
}

// Spec returns the field spec with the given canonical name.
func (d EntityDefinition) Spec(name string) (FieldSpec, bool) {
	for _, s := range d.FieldSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return FieldSpec{}, false
}

// Record is one row of a registered entity.
type Record interface {
	EntityKind() EntityKind
	RecordID() string
	// Cells returns the present fields as raw strings. Missing values are
	// absent from the map; a present but empty list maps to "".
	Cells() Cells
}

// Client is a customer requesting tasks.
type Client struct {
	ClientID         string            `json:"ClientID"`
	ClientName       string            `json:"ClientName"`
	PriorityLevel    pgtype.Int4       `json:"PriorityLevel"`
	RequestedTaskIDs []string          `json:"RequestedTaskIDs"`
	GroupTag         string            `json:"GroupTag"`
	AttributesJSON   string            `json:"AttributesJSON"`
	Extra            map[string]string `json:"Extra,omitempty"`
}

// Worker is a person who can be assigned tasks within phases.
type Worker struct {
	WorkerID           string            `json:"WorkerID"`
	WorkerName         string            `json:"WorkerName"`
	Skills             []string          `json:"Skills"`
	AvailableSlots     []int             `json:"AvailableSlots"`
	MaxLoadPerPhase    pgtype.Int4       `json:"MaxLoadPerPhase"`
	WorkerGroup        string            `json:"WorkerGroup"`
	QualificationLevel pgtype.Int4       `json:"QualificationLevel"`
	Extra              map[string]string `json:"Extra,omitempty"`
}

// Task is a unit of work requested by clients.
type Task struct {
	TaskID          string            `json:"TaskID"`
	TaskName        string            `json:"TaskName"`
	Category        string            `json:"Category"`
	Duration        pgtype.Int4       `json:"Duration"`
	RequiredSkills  []string          `json:"RequiredSkills"`
	PreferredPhases []int             `json:"PreferredPhases"`
	MaxConcurrent   pgtype.Int4       `json:"MaxConcurrent"`
	Extra           map[string]string `json:"Extra,omitempty"`
}

func (Client) EntityKind() EntityKind { return KindClients }
func (Worker) EntityKind() EntityKind { return KindWorkers }
func (Task) EntityKind() EntityKind   { return KindTasks }

func (c Client) RecordID() string { return c.ClientID }
func (w Worker) RecordID() string { return w.WorkerID }
func (t Task) RecordID() string   { return t.TaskID }

// Cells implements Record.
func (c Client) Cells() Cells {
	out := newCells(c.Extra)
	putText(out, "ClientID", c.ClientID)
	putText(out, "ClientName", c.ClientName)
	putInt(out, "PriorityLevel", c.PriorityLevel)
	putList(out, "RequestedTaskIDs", c.RequestedTaskIDs)
	putText(out, "GroupTag", c.GroupTag)
	putText(out, "AttributesJSON", c.AttributesJSON)
	return out
}

// Cells implements Record.
func (w Worker) Cells() Cells {
	out := newCells(w.Extra)
	putText(out, "WorkerID", w.WorkerID)
	putText(out, "WorkerName", w.WorkerName)
	putList(out, "Skills", w.Skills)
	putPhases(out, "AvailableSlots", w.AvailableSlots)
	putInt(out, "MaxLoadPerPhase", w.MaxLoadPerPhase)
	putText(out, "WorkerGroup", w.WorkerGroup)
	putInt(out, "QualificationLevel", w.QualificationLevel)
	return out
}

// Cells implements Record.
func (t Task) Cells() Cells {
	out := newCells(t.Extra)
	putText(out, "TaskID", t.TaskID)
	putText(out, "TaskName", t.TaskName)
	putText(out, "Category", t.Category)
	putInt(out, "Duration", t.Duration)
	putList(out, "RequiredSkills", t.RequiredSkills)
	putPhases(out, "PreferredPhases", t.PreferredPhases)
	putInt(out, "MaxConcurrent", t.MaxConcurrent)
	return out
}

func newCells(extra map[string]string) Cells {
	out := make(Cells, len(extra)+8)
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func putText(c Cells, name, v string) {
	if strings.TrimSpace(v) != "" {
		c[name] = v
	}
}

func putInt(c Cells, name string, v pgtype.Int4) {
	if v.Valid {
		c[name] = strconv.Itoa(int(v.Int32))
	}
}

// putList writes a present but empty list as "[]" so it reads back as empty
// rather than missing.
func putList(c Cells, name string, v []string) {
	switch {
	case v == nil:
	case len(v) == 0:
		c[name] = "[]"
	default:
		c[name] = FormatList(v)
	}
}

func putPhases(c Cells, name string, v []int) {
	switch {
	case v == nil:
	case len(v) == 0:
		c[name] = "[]"
	default:
		c[name] = FormatPhases(v)
	}
}

// Severity distinguishes blocking problems from advisory ones.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ErrorType categorizes a validation finding.
type ErrorType string

const (
	ErrorMissing   ErrorType = "missing"
	ErrorInvalid   ErrorType = "invalid"
	ErrorDuplicate ErrorType = "duplicate"
	ErrorWarning   ErrorType = "warning"
)

// EntityWide is the row index used for findings that concern a whole entity.
const EntityWide = -1

// ValidationError is one finding produced by the validator.
// Validation errors are data shown to the user, not Go errors.
type ValidationError struct {
	ID       string     `json:"id"`
	Type     ErrorType  `json:"type"`
	Entity   EntityKind `json:"entity"`
	Row      int        `json:"row"`
	Field    string     `json:"field"`
	Message  string     `json:"message"`
	Severity Severity   `json:"severity"`
}

func (e ValidationError) Error() string {
	if e.Row == EntityWide {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("%s[%d].%s: %s", e.Entity, e.Row, e.Field, e.Message)
}

// FailedRow contains information about a row the parser had to skip.
type FailedRow struct {
	FileName   string   `json:"fileName,omitempty"`
	LineNumber int      `json:"line"`
	Reason     string   `json:"reason"`
	Data       []string `json:"data"`
}

// Batch is the result of parsing one uploaded file.
type Batch struct {
	Kind       EntityKind  `json:"kind"`
	FileName   string      `json:"fileName,omitempty"`
	RawHeaders []string    `json:"rawHeaders"`
	Headers    []string    `json:"headers"` // after mapping to canonical names
	Records    []Record    `json:"-"`
	FailedRows []FailedRow `json:"failedRows,omitempty"`
}

// UploadResult contains the outcome of committing an upload to a session.
type UploadResult struct {
	Kind       EntityKind        `json:"kind"`
	FileName   string            `json:"fileName"`
	Headers    []string          `json:"headers"`
	TotalRows  int               `json:"totalRows"`
	Skipped    int               `json:"skipped"`
	FailedRows []FailedRow       `json:"failedRows,omitempty"`
	Errors     []ValidationError `json:"errors"`
	Summary    Summary           `json:"summary"`
}
