package core

// validation.go checks entity rows against field rules and against each other.
//
// Every check is independent: the validator walks each row once, looks values
// up in sets built from the rest of the state and returns a flat list of
// findings. Nothing is mutated and no check depends on another's outcome.
//
// Cross-entity checks need the other entities loaded. When tasks or workers
// are missing entirely, a single entity-wide warning replaces the per-row
// reference errors that would otherwise flood the list.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Messages that fixes and tests match on.
const (
	MsgTasksNotUploaded    = "Tasks data not uploaded; cannot validate RequestedTaskIDs"
	MsgWorkersNotUploaded  = "Workers data not uploaded; cannot validate RequiredSkills"
	MsgPriorityRange       = "PriorityLevel must be between 1 and 5"
	MsgRequestedEmpty      = "RequestedTaskIDs cannot be empty"
	MsgInvalidJSON         = "Invalid JSON in AttributesJSON"
	MsgEmptyJSON           = "AttributesJSON cannot be empty"
	MsgSkillsEmpty         = "Skills array is empty"
	MsgSlotsInvalid        = "AvailableSlots contains non-numeric values"
	MsgSlotsOutOfRange     = "AvailableSlots contains phases outside 1-6"
	MsgLoadNegative        = "MaxLoadPerPhase must be a non-negative number"
	MsgSlotsBelowLoad      = "AvailableSlots length less than MaxLoadPerPhase"
	MsgQualificationRange  = "QualificationLevel must be between 1 and 5"
	MsgRequiredSkillsEmpty = "RequiredSkills array is empty"
	MsgPhasesInvalid       = "PreferredPhases contains non-numeric values"
	MsgPhasesOutOfRange    = "PreferredPhases contains phases outside 1-6"
	MsgDurationInvalid     = "Duration must be a positive number"
	MsgConcurrentInvalid   = "MaxConcurrent must be a positive number"
	MsgCapacityExceeded    = "Total task durations exceed available worker slots"
	MsgPhaseWindowConflict = "PreferredPhases conflicts with phase-window rules"
)

// Validate checks the rows of one entity kind as currently held in st.
func Validate(kind EntityKind, st *State) []ValidationError {
	switch kind {
	case KindClients:
		return ValidateClients(st.Clients, st)
	case KindWorkers:
		return ValidateWorkers(st.Workers, st)
	case KindTasks:
		return ValidateTasks(st.Tasks, st)
	}
	return nil
}

// ValidateAll validates the three entity kinds concurrently and returns the
// findings ordered clients, workers, tasks.
func ValidateAll(ctx context.Context, st *State) ([]ValidationError, error) {
	kinds := []EntityKind{KindClients, KindWorkers, KindTasks}
	results := make([][]ValidationError, len(kinds))

	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Validate(kind, st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	all := make([]ValidationError, 0, total)
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// ValidateClients checks client rows.
func ValidateClients(rows []Client, st *State) []ValidationError {
	var out []ValidationError
	add := collector(KindClients, &out)

	noTasks := len(st.Tasks) == 0
	if noTasks && len(rows) > 0 {
		add(EntityWide, "RequestedTaskIDs", ErrorWarning, SeverityWarning, MsgTasksNotUploaded)
	}
	taskIDs := st.taskIDSet()
	seen := make(map[string]bool, len(rows))

	for i, c := range rows {
		checkRequired(KindClients, i, c, add)

		if c.PriorityLevel.Valid && outOfLevelRange(c.PriorityLevel.Int32) {
			add(i, "PriorityLevel", ErrorInvalid, SeverityError, MsgPriorityRange)
		}

		if len(c.RequestedTaskIDs) == 0 {
			add(i, "RequestedTaskIDs", ErrorInvalid, SeverityError, MsgRequestedEmpty)
		} else if !noTasks {
			for _, id := range c.RequestedTaskIDs {
				if id != "" && !taskIDs[id] {
					add(i, "RequestedTaskIDs", ErrorInvalid, SeverityError, fmt.Sprintf("Task %s not found", id))
				}
			}
		}

		if strings.TrimSpace(c.AttributesJSON) == "" {
			add(i, "AttributesJSON", ErrorInvalid, SeverityWarning, MsgEmptyJSON)
		} else if !json.Valid([]byte(c.AttributesJSON)) {
			add(i, "AttributesJSON", ErrorInvalid, SeverityError, MsgInvalidJSON)
		}

		checkDuplicate(seen, i, "ClientID", c.ClientID, add)
	}
	return out
}

// ValidateWorkers checks worker rows.
func ValidateWorkers(rows []Worker, st *State) []ValidationError {
	var out []ValidationError
	add := collector(KindWorkers, &out)
	seen := make(map[string]bool, len(rows))

	for i, w := range rows {
		checkRequired(KindWorkers, i, w, add)

		if len(w.Skills) == 0 {
			add(i, "Skills", ErrorInvalid, SeverityWarning, MsgSkillsEmpty)
		}

		slots := ValidPhases(w.AvailableSlots)
		switch {
		case len(slots) == 0:
			add(i, "AvailableSlots", ErrorInvalid, SeverityError, MsgSlotsInvalid)
		case len(slots) < len(w.AvailableSlots):
			add(i, "AvailableSlots", ErrorWarning, SeverityWarning, MsgSlotsOutOfRange)
		}

		if w.MaxLoadPerPhase.Valid {
			load := int(w.MaxLoadPerPhase.Int32)
			if load < 0 {
				add(i, "MaxLoadPerPhase", ErrorInvalid, SeverityError, MsgLoadNegative)
			}
			if len(slots) < load {
				add(i, "MaxLoadPerPhase", ErrorInvalid, SeverityWarning, MsgSlotsBelowLoad)
			}
		}

		if w.QualificationLevel.Valid && outOfLevelRange(w.QualificationLevel.Int32) {
			add(i, "QualificationLevel", ErrorInvalid, SeverityError, MsgQualificationRange)
		}

		checkDuplicate(seen, i, "WorkerID", w.WorkerID, add)
	}
	return out
}

// ValidateTasks checks task rows, including the aggregate capacity check
// and the checks against co-run and phase-window rules.
func ValidateTasks(rows []Task, st *State) []ValidationError {
	var out []ValidationError
	add := collector(KindTasks, &out)

	noWorkers := len(st.Workers) == 0
	if noWorkers && len(rows) > 0 {
		add(EntityWide, "RequiredSkills", ErrorWarning, SeverityWarning, MsgWorkersNotUploaded)
	}

	workerSkills := make(map[string]bool)
	for _, w := range st.Workers {
		for _, s := range w.Skills {
			workerSkills[s] = true
		}
	}
	coRun := activeRules(st.Rules, RuleCoRun)
	phaseWindows := activeRules(st.Rules, RulePhaseWindow)
	seen := make(map[string]bool, len(rows))

	for i, t := range rows {
		checkRequired(KindTasks, i, t, add)

		if len(t.RequiredSkills) == 0 {
			add(i, "RequiredSkills", ErrorInvalid, SeverityWarning, MsgRequiredSkillsEmpty)
		}

		phases := ValidPhases(t.PreferredPhases)
		switch {
		case len(phases) == 0:
			add(i, "PreferredPhases", ErrorInvalid, SeverityError, MsgPhasesInvalid)
		case len(phases) < len(t.PreferredPhases):
			add(i, "PreferredPhases", ErrorWarning, SeverityWarning, MsgPhasesOutOfRange)
		}

		if t.Duration.Valid && t.Duration.Int32 < 1 {
			add(i, "Duration", ErrorInvalid, SeverityError, MsgDurationInvalid)
		}

		if t.MaxConcurrent.Valid {
			concurrent := int(t.MaxConcurrent.Int32)
			if concurrent <= 0 {
				add(i, "MaxConcurrent", ErrorInvalid, SeverityError, MsgConcurrentInvalid)
			}
			if !noWorkers {
				if qualified := countQualifiedWorkers(st.Workers, t.RequiredSkills, concurrent); qualified < concurrent {
					add(i, "MaxConcurrent", ErrorInvalid, SeverityWarning,
						fmt.Sprintf("MaxConcurrent %d exceeds qualified workers %d", concurrent, qualified))
				}
			}
		}

		checkDuplicate(seen, i, "TaskID", t.TaskID, add)

		if !noWorkers {
			for _, skill := range t.RequiredSkills {
				if skill != "" && !workerSkills[skill] {
					add(i, "RequiredSkills", ErrorInvalid, SeverityError,
						fmt.Sprintf("Required skill %s not found in any worker", skill))
				}
			}
		}

		if circularCoRun(coRun, t.TaskID) {
			add(i, "TaskID", ErrorInvalid, SeverityError,
				fmt.Sprintf("Circular co-run detected with TaskID %s", t.TaskID))
		}

		if len(phases) > 0 && conflictsWithPhaseWindow(phaseWindows, t.TaskID, phases) {
			add(i, "PreferredPhases", ErrorInvalid, SeverityWarning, MsgPhaseWindowConflict)
		}
	}

	if !noWorkers && len(rows) > 0 {
		slots, duration := 0, 0
		for _, w := range st.Workers {
			slots += len(ValidPhases(w.AvailableSlots))
		}
		for _, t := range rows {
			if t.Duration.Valid {
				duration += int(t.Duration.Int32)
			}
		}
		if duration > slots {
			add(EntityWide, "Duration", ErrorInvalid, SeverityWarning, MsgCapacityExceeded)
		}
	}

	return out
}

type addFunc func(row int, field string, typ ErrorType, sev Severity, msg string)

func collector(kind EntityKind, out *[]ValidationError) addFunc {
	return func(row int, field string, typ ErrorType, sev Severity, msg string) {
		*out = append(*out, ValidationError{
			ID:       uuid.NewString(),
			Type:     typ,
			Entity:   kind,
			Row:      row,
			Field:    field,
			Message:  msg,
			Severity: sev,
		})
	}
}

// checkRequired reports required fields that are absent. A list that is
// present but empty is not missing; the entity checks report it instead.
func checkRequired(kind EntityKind, row int, rec Record, add addFunc) {
	def, ok := Get(kind)
	if !ok {
		return
	}
	cells := rec.Cells()
	for _, spec := range def.FieldSpecs {
		if !spec.Required {
			continue
		}
		v, present := cells[spec.Name]
		isList := spec.Type == FieldList || spec.Type == FieldPhases
		if !present || (!isList && strings.TrimSpace(v) == "") {
			add(row, spec.Name, ErrorMissing, SeverityError, spec.Name+" is required")
		}
	}
}

// checkDuplicate flags every occurrence of id after the first one.
func checkDuplicate(seen map[string]bool, row int, field, id string, add addFunc) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if seen[id] {
		add(row, field, ErrorDuplicate, SeverityError, fmt.Sprintf("Duplicate %s: %s", field, id))
		return
	}
	seen[id] = true
}

func outOfLevelRange(v int32) bool {
	return v < 1 || v > 5
}

// countQualifiedWorkers counts workers holding every required skill and at
// least `concurrent` valid slots.
func countQualifiedWorkers(workers []Worker, required []string, concurrent int) int {
	n := 0
	for _, w := range workers {
		if len(ValidPhases(w.AvailableSlots)) < concurrent {
			continue
		}
		if containsAll(w.Skills, required) {
			n++
		}
	}
	return n
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func activeRules(rules []Rule, typ RuleType) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Active && r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// circularCoRun flattens the task lists of every co-run rule mentioning
// taskID and reports whether any task appears more than once.
func circularCoRun(coRun []Rule, taskID string) bool {
	if taskID == "" {
		return false
	}
	var flat []string
	for _, r := range coRun {
		if contains(r.Parameters.Tasks, taskID) {
			flat = append(flat, r.Parameters.Tasks...)
		}
	}
	set := make(map[string]bool, len(flat))
	for _, id := range flat {
		set[id] = true
	}
	return len(flat) > len(set)
}

// conflictsWithPhaseWindow reports whether a phase-window rule for taskID
// allows none of the task's preferred phases.
func conflictsWithPhaseWindow(windows []Rule, taskID string, phases []int) bool {
	for _, r := range windows {
		if r.Parameters.TaskID != taskID || len(r.Parameters.Phases) == 0 {
			continue
		}
		if !intersects(r.Parameters.Phases, phases) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []int) bool {
	set := make(map[int]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if set[v] {
			return true
		}
	}
	return false
}

// EntityCounts tallies findings for one entity.
type EntityCounts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Summary tallies findings overall and per entity.
type Summary struct {
	Errors   int                         `json:"errors"`
	Warnings int                         `json:"warnings"`
	ByEntity map[EntityKind]EntityCounts `json:"byEntity"`
}

// Summarize counts errors and warnings.
func Summarize(errs []ValidationError) Summary {
	s := Summary{ByEntity: make(map[EntityKind]EntityCounts)}
	for _, e := range errs {
		c := s.ByEntity[e.Entity]
		if e.Severity == SeverityWarning {
			s.Warnings++
			c.Warnings++
		} else {
			s.Errors++
			c.Errors++
		}
		s.ByEntity[e.Entity] = c
	}
	return s
}

// HasBlockingErrors reports whether any finding has error severity.
func HasBlockingErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}
