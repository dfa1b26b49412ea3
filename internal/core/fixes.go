package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// FixKind names one deterministic correction.
type FixKind string

const (
	FixUnknownTaskRefs  FixKind = "unknown-task-references"
	FixMalformedJSON    FixKind = "malformed-json"
	FixOverloadedWorker FixKind = "overloaded-workers"
	FixInvalidDurations FixKind = "invalid-durations"
	FixPriorityRange    FixKind = "priority-range"
)

// FixKinds lists every correction in the order they are applied.
func FixKinds() []FixKind {
	return []FixKind{
		FixUnknownTaskRefs, FixMalformedJSON, FixOverloadedWorker,
		FixInvalidDurations, FixPriorityRange,
	}
}

// ParseFixKind validates a fix name.
func ParseFixKind(s string) (FixKind, error) {
	for _, k := range FixKinds() {
		if string(k) == strings.TrimSpace(s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown fix %q", s)
}

// FixSuggestion describes a correction that would resolve some findings.
type FixSuggestion struct {
	Kind        FixKind    `json:"kind"`
	Entity      EntityKind `json:"entity"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Action      string     `json:"action"`
	Confidence  float64    `json:"confidence"`
	ErrorIDs    []string   `json:"errorIds"`
}

type fixMatcher struct {
	kind        FixKind
	entity      EntityKind
	title       string
	description string
	action      string
	confidence  float64
	match       func(ValidationError) bool
}

var fixMatchers = []fixMatcher{
	{
		kind: FixUnknownTaskRefs, entity: KindClients,
		title:       "Remove unknown task references",
		description: "Drop RequestedTaskIDs entries that do not match any TaskID",
		action:      "Remove invalid task IDs",
		confidence:  0.9,
		match: func(e ValidationError) bool {
			return e.Field == "RequestedTaskIDs" && strings.HasSuffix(e.Message, " not found")
		},
	},
	{
		kind: FixMalformedJSON, entity: KindClients,
		title:       "Wrap malformed AttributesJSON",
		description: `Replace invalid JSON with {"message": <original text>}`,
		action:      "Wrap text as JSON",
		confidence:  0.8,
		match: func(e ValidationError) bool {
			return e.Field == "AttributesJSON" && e.Message == MsgInvalidJSON
		},
	},
	{
		kind: FixOverloadedWorker, entity: KindWorkers,
		title:       "Clamp MaxLoadPerPhase",
		description: "Lower MaxLoadPerPhase to the number of available slots",
		action:      "Adjust max load",
		confidence:  0.85,
		match: func(e ValidationError) bool {
			return e.Field == "MaxLoadPerPhase" && e.Message == MsgSlotsBelowLoad
		},
	},
	{
		kind: FixInvalidDurations, entity: KindTasks,
		title:       "Fix invalid durations",
		description: "Set Duration to 1 where it is below 1",
		action:      "Set minimum duration",
		confidence:  0.95,
		match: func(e ValidationError) bool {
			return e.Field == "Duration" && e.Message == MsgDurationInvalid
		},
	},
	{
		kind: FixPriorityRange, entity: KindClients,
		title:       "Clamp priority levels",
		description: "Move PriorityLevel values into the range 1-5",
		action:      "Clamp priority",
		confidence:  0.9,
		match: func(e ValidationError) bool {
			return e.Field == "PriorityLevel" && e.Message == MsgPriorityRange
		},
	},
}

// SuggestFixes groups findings by the correction that resolves them.
func SuggestFixes(errs []ValidationError) []FixSuggestion {
	var out []FixSuggestion
	for _, m := range fixMatchers {
		var ids []string
		for _, e := range errs {
			if e.Entity == m.entity && m.match(e) {
				ids = append(ids, e.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, FixSuggestion{
			Kind:        m.kind,
			Entity:      m.entity,
			Title:       m.title,
			Description: fmt.Sprintf("%s (%d affected)", m.description, len(ids)),
			Action:      m.action,
			Confidence:  m.confidence,
			ErrorIDs:    ids,
		})
	}
	return out
}

// ApplyFixesTo applies the given corrections to st in place and returns the
// number of rows changed. An empty kinds list applies every correction.
func ApplyFixesTo(st *State, kinds []FixKind) int {
	if len(kinds) == 0 {
		kinds = FixKinds()
	}
	changed := 0
	for _, k := range kinds {
		switch k {
		case FixUnknownTaskRefs:
			changed += fixTaskRefs(st)
		case FixMalformedJSON:
			changed += fixJSON(st)
		case FixOverloadedWorker:
			changed += fixWorkerLoad(st)
		case FixInvalidDurations:
			changed += fixDurations(st)
		case FixPriorityRange:
			changed += fixPriorities(st)
		}
	}
	return changed
}

func fixTaskRefs(st *State) int {
	if len(st.Tasks) == 0 {
		return 0
	}
	known := st.taskIDSet()
	n := 0
	for i, c := range st.Clients {
		kept := slices.DeleteFunc(slices.Clone(c.RequestedTaskIDs), func(id string) bool {
			return id != "" && !known[id]
		})
		if len(kept) != len(c.RequestedTaskIDs) {
			st.Clients[i].RequestedTaskIDs = kept
			n++
		}
	}
	return n
}

func fixJSON(st *State) int {
	n := 0
	for i, c := range st.Clients {
		raw := strings.TrimSpace(c.AttributesJSON)
		if raw == "" || json.Valid([]byte(raw)) {
			continue
		}
		wrapped, err := json.Marshal(map[string]string{"message": raw})
		if err != nil {
			continue
		}
		st.Clients[i].AttributesJSON = string(wrapped)
		n++
	}
	return n
}

func fixWorkerLoad(st *State) int {
	n := 0
	for i, w := range st.Workers {
		if !w.MaxLoadPerPhase.Valid {
			continue
		}
		slots := int32(len(ValidPhases(w.AvailableSlots)))
		if w.MaxLoadPerPhase.Int32 > slots {
			st.Workers[i].MaxLoadPerPhase = Int4(int(slots))
			n++
		}
	}
	return n
}

func fixDurations(st *State) int {
	n := 0
	for i, t := range st.Tasks {
		if t.Duration.Valid && t.Duration.Int32 < 1 {
			st.Tasks[i].Duration = Int4(1)
			n++
		}
	}
	return n
}

func fixPriorities(st *State) int {
	n := 0
	for i, c := range st.Clients {
		if !c.PriorityLevel.Valid || !outOfLevelRange(c.PriorityLevel.Int32) {
			continue
		}
		st.Clients[i].PriorityLevel = Int4(int(min(max(c.PriorityLevel.Int32, 1), 5)))
		n++
	}
	return n
}
