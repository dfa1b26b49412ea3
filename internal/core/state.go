package core

import (
	"fmt"
	"maps"
	"slices"
)

// State is one immutable snapshot of a cleaning session.
type State struct {
	Clients          []Client                `json:"clients"`
	Workers          []Worker                `json:"workers"`
	Tasks            []Task                  `json:"tasks"`
	Headers          map[EntityKind][]string `json:"headers,omitempty"`
	Rules            []Rule                  `json:"rules"`
	Priorities       []Priority              `json:"priorities"`
	ValidationErrors []ValidationError       `json:"validationErrors"`
}

// NewState returns an empty state carrying the default priorities.
func NewState() *State {
	return &State{
		Clients:          []Client{},
		Workers:          []Worker{},
		Tasks:            []Task{},
		Headers:          map[EntityKind][]string{},
		Rules:            []Rule{},
		Priorities:       DefaultPriorities(),
		ValidationErrors: []ValidationError{},
	}
}

// Clone returns a deep copy. Nil and empty slices are preserved as such.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Clients:          make([]Client, len(s.Clients)),
		Workers:          make([]Worker, len(s.Workers)),
		Tasks:            make([]Task, len(s.Tasks)),
		Rules:            make([]Rule, len(s.Rules)),
		Priorities:       slices.Clone(s.Priorities),
		ValidationErrors: slices.Clone(s.ValidationErrors),
	}
	for i, c := range s.Clients {
		out.Clients[i] = c.clone()
	}
	for i, w := range s.Workers {
		out.Workers[i] = w.clone()
	}
	for i, t := range s.Tasks {
		out.Tasks[i] = t.clone()
	}
	for i, r := range s.Rules {
		out.Rules[i] = r.clone()
	}
	if s.Headers != nil {
		out.Headers = make(map[EntityKind][]string, len(s.Headers))
		for k, v := range s.Headers {
			out.Headers[k] = slices.Clone(v)
		}
	}
	return out
}

func (c Client) clone() Client {
	c.RequestedTaskIDs = slices.Clone(c.RequestedTaskIDs)
	c.Extra = maps.Clone(c.Extra)
	return c
}

func (w Worker) clone() Worker {
	w.Skills = slices.Clone(w.Skills)
	w.AvailableSlots = slices.Clone(w.AvailableSlots)
	w.Extra = maps.Clone(w.Extra)
	return w
}

func (t Task) clone() Task {
	t.RequiredSkills = slices.Clone(t.RequiredSkills)
	t.PreferredPhases = slices.Clone(t.PreferredPhases)
	t.Extra = maps.Clone(t.Extra)
	return t
}

// Len returns the number of rows held for kind.
func (s *State) Len(kind EntityKind) int {
	switch kind {
	case KindClients:
		return len(s.Clients)
	case KindWorkers:
		return len(s.Workers)
	case KindTasks:
		return len(s.Tasks)
	}
	return 0
}

// Records returns the rows of kind as Records.
func (s *State) Records(kind EntityKind) []Record {
	out := make([]Record, 0, s.Len(kind))
	switch kind {
	case KindClients:
		for _, c := range s.Clients {
			out = append(out, c)
		}
	case KindWorkers:
		for _, w := range s.Workers {
			out = append(out, w)
		}
	case KindTasks:
		for _, t := range s.Tasks {
			out = append(out, t)
		}
	}
	return out
}

// Record returns row i of kind.
func (s *State) Record(kind EntityKind, i int) (Record, error) {
	if i < 0 || i >= s.Len(kind) {
		return nil, fmt.Errorf("%w: %s row %d of %d", ErrRowOutOfRange, kind, i, s.Len(kind))
	}
	switch kind {
	case KindClients:
		return s.Clients[i], nil
	case KindWorkers:
		return s.Workers[i], nil
	default:
		return s.Tasks[i], nil
	}
}

// Groups returns the distinct non-empty client GroupTag and WorkerGroup values.
func (s *State) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(g string) {
		if g != "" && !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	for _, c := range s.Clients {
		add(c.GroupTag)
	}
	for _, w := range s.Workers {
		add(w.WorkerGroup)
	}
	return out
}

func (s *State) taskIDSet() map[string]bool {
	set := make(map[string]bool, len(s.Tasks))
	for _, t := range s.Tasks {
		set[t.TaskID] = true
	}
	return set
}

func (s *State) ruleIndex(id string) int {
	for i, r := range s.Rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Counts reports the number of rows per entity.
func (s *State) Counts() map[EntityKind]int {
	return map[EntityKind]int{
		KindClients: len(s.Clients),
		KindWorkers: len(s.Workers),
		KindTasks:   len(s.Tasks),
	}
}

// RecordsAs converts records of one kind back to a typed slice.
// Records of another kind are skipped.
func RecordsAs[T Record](records []Record) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if v, ok := r.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
