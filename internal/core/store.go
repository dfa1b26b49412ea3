package core

// store.go holds a session's data as a history of immutable snapshots.
//
// Every mutation goes through Dispatch: the action runs against a deep copy
// of the current snapshot, validation is re-run on the result and the new
// snapshot is appended to history. Dispatching after an undo discards the
// redo tail. Snapshots in history are never modified after they are stored.

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultHistoryLimit is the number of snapshots kept when no limit is given.
const DefaultHistoryLimit = 200

var (
	// ErrRowOutOfRange is returned when a row index does not exist.
	ErrRowOutOfRange = errors.New("row out of range")

	errNoChange = errors.New("no change")
)

// Action is a mutation of session state.
type Action interface {
	// Name identifies the action in logs.
	Name() string
	apply(st *State) error
}

// SetClients replaces all client rows, typically after an upload.
type SetClients struct {
	Rows    []Client
	Headers []string
}

// SetWorkers replaces all worker rows.
type SetWorkers struct {
	Rows    []Worker
	Headers []string
}

// SetTasks replaces all task rows.
type SetTasks struct {
	Rows    []Task
	Headers []string
}

// UpdateClient replaces the client at Index.
type UpdateClient struct {
	Index int
	Row   Client
}

// UpdateWorker replaces the worker at Index.
type UpdateWorker struct {
	Index int
	Row   Worker
}

// UpdateTask replaces the task at Index.
type UpdateTask struct {
	Index int
	Row   Task
}

// AddRule appends a rule.
type AddRule struct{ Rule Rule }

// UpdateRule replaces the rule with the same ID.
type UpdateRule struct{ Rule Rule }

// ToggleRule flips a rule's Active flag.
type ToggleRule struct{ ID string }

// SetPriorities replaces the priority list.
type SetPriorities struct{ Priorities []Priority }

// ApplyFixes runs deterministic corrections. Empty Kinds means all of them.
type ApplyFixes struct{ Kinds []FixKind }

// ImportRulesConfig replaces rules and, when given, priorities.
type ImportRulesConfig struct {
	Rules      []Rule
	Priorities []Priority
}

func (SetClients) Name() string        { return "set_clients" }
func (SetWorkers) Name() string        { return "set_workers" }
func (SetTasks) Name() string          { return "set_tasks" }
func (UpdateClient) Name() string      { return "update_client" }
func (UpdateWorker) Name() string      { return "update_worker" }
func (UpdateTask) Name() string        { return "update_task" }
func (AddRule) Name() string           { return "add_rule" }
func (UpdateRule) Name() string        { return "update_rule" }
func (ToggleRule) Name() string        { return "toggle_rule" }
func (SetPriorities) Name() string     { return "set_priorities" }
func (ApplyFixes) Name() string        { return "apply_fixes" }
func (ImportRulesConfig) Name() string { return "import_rules_config" }

func (a SetClients) apply(st *State) error {
	st.Clients = make([]Client, len(a.Rows))
	for i, r := range a.Rows {
		st.Clients[i] = r.clone()
	}
	setHeaders(st, KindClients, a.Headers)
	return nil
}

func (a SetWorkers) apply(st *State) error {
	st.Workers = make([]Worker, len(a.Rows))
	for i, r := range a.Rows {
		st.Workers[i] = r.clone()
	}
	setHeaders(st, KindWorkers, a.Headers)
	return nil
}

func (a SetTasks) apply(st *State) error {
	st.Tasks = make([]Task, len(a.Rows))
	for i, r := range a.Rows {
		st.Tasks[i] = r.clone()
	}
	setHeaders(st, KindTasks, a.Headers)
	return nil
}

func setHeaders(st *State, kind EntityKind, headers []string) {
	if st.Headers == nil {
		st.Headers = make(map[EntityKind][]string)
	}
	if headers == nil {
		delete(st.Headers, kind)
		return
	}
	st.Headers[kind] = append([]string(nil), headers...)
}

func (a UpdateClient) apply(st *State) error {
	if err := checkIndex(st, KindClients, a.Index); err != nil {
		return err
	}
	st.Clients[a.Index] = a.Row.clone()
	return nil
}

func (a UpdateWorker) apply(st *State) error {
	if err := checkIndex(st, KindWorkers, a.Index); err != nil {
		return err
	}
	st.Workers[a.Index] = a.Row.clone()
	return nil
}

func (a UpdateTask) apply(st *State) error {
	if err := checkIndex(st, KindTasks, a.Index); err != nil {
		return err
	}
	st.Tasks[a.Index] = a.Row.clone()
	return nil
}

func checkIndex(st *State, kind EntityKind, i int) error {
	if i < 0 || i >= st.Len(kind) {
		return fmt.Errorf("%w: %s row %d of %d", ErrRowOutOfRange, kind, i, st.Len(kind))
	}
	return nil
}

func (a AddRule) apply(st *State) error {
	if a.Rule.ID == "" {
		return fmt.Errorf("%w: rule has no id", ErrInvalidRule)
	}
	if st.ruleIndex(a.Rule.ID) >= 0 {
		return fmt.Errorf("%w: duplicate rule id %s", ErrInvalidRule, a.Rule.ID)
	}
	st.Rules = append(st.Rules, a.Rule.clone())
	return nil
}

func (a UpdateRule) apply(st *State) error {
	i := st.ruleIndex(a.Rule.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, a.Rule.ID)
	}
	st.Rules[i] = a.Rule.clone()
	return nil
}

func (a ToggleRule) apply(st *State) error {
	i := st.ruleIndex(a.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, a.ID)
	}
	st.Rules[i].Active = !st.Rules[i].Active
	return nil
}

func (a SetPriorities) apply(st *State) error {
	st.Priorities = append([]Priority{}, a.Priorities...)
	return nil
}

func (a ApplyFixes) apply(st *State) error {
	if ApplyFixesTo(st, a.Kinds) == 0 {
		return errNoChange
	}
	return nil
}

func (a ImportRulesConfig) apply(st *State) error {
	st.Rules = make([]Rule, len(a.Rules))
	for i, r := range a.Rules {
		st.Rules[i] = r.clone()
	}
	if len(a.Priorities) > 0 {
		st.Priorities = append([]Priority{}, a.Priorities...)
	}
	return nil
}

// UpdateRecord builds the typed update action for rec.
func UpdateRecord(index int, rec Record) (Action, error) {
	switch r := rec.(type) {
	case Client:
		return UpdateClient{Index: index, Row: r}, nil
	case Worker:
		return UpdateWorker{Index: index, Row: r}, nil
	case Task:
		return UpdateTask{Index: index, Row: r}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownEntity, rec)
}

// ReplaceRecords builds the typed set action for a parsed batch.
func ReplaceRecords(kind EntityKind, records []Record, headers []string) (Action, error) {
	switch kind {
	case KindClients:
		return SetClients{Rows: RecordsAs[Client](records), Headers: headers}, nil
	case KindWorkers:
		return SetWorkers{Rows: RecordsAs[Worker](records), Headers: headers}, nil
	case KindTasks:
		return SetTasks{Rows: RecordsAs[Task](records), Headers: headers}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, kind)
}

// Store is a bounded undo/redo history of session snapshots.
type Store struct {
	mu      sync.RWMutex
	history []*State
	index   int
	limit   int
}

// NewStore returns a store holding an empty state.
func NewStore(limit int) *Store {
	return NewStoreFrom(NewState(), limit)
}

// NewStoreFrom returns a store whose history starts at a copy of st.
func NewStoreFrom(st *State, limit int) *Store {
	if limit < 2 {
		limit = DefaultHistoryLimit
	}
	return &Store{
		history: []*State{st.Clone()},
		limit:   limit,
	}
}

// Dispatch applies a to the current snapshot, revalidates and records the
// result. It returns a copy of the new current state. A failed action
// leaves history untouched. ApplyFixes with nothing to fix records no
// snapshot; every other successful action records one, even when the
// state is unchanged.
func (s *Store) Dispatch(ctx context.Context, a Action) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.history[s.index].Clone()
	if err := a.apply(next); err != nil {
		if errors.Is(err, errNoChange) {
			return next, nil
		}
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}

	errs, err := ValidateAll(ctx, next)
	if err != nil {
		return nil, err
	}
	if errs == nil {
		errs = []ValidationError{}
	}
	next.ValidationErrors = errs

	s.history = append(s.history[:s.index+1], next)
	if over := len(s.history) - s.limit; over > 0 {
		for i := range over {
			s.history[i] = nil
		}
		s.history = append([]*State(nil), s.history[over:]...)
	}
	s.index = len(s.history) - 1

	return next.Clone(), nil
}

// Undo steps back one snapshot. It reports false at the oldest snapshot.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == 0 {
		return false
	}
	s.index--
	return true
}

// Redo steps forward one snapshot. It reports false at the newest snapshot.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.history)-1 {
		return false
	}
	s.index++
	return true
}

// CanUndo reports whether Undo would move.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index > 0
}

// CanRedo reports whether Redo would move.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index < len(s.history)-1
}

// Current returns a copy of the current snapshot.
func (s *Store) Current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[s.index].Clone()
}

// HistoryLen returns the number of stored snapshots.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Index returns the position of the current snapshot in history.
func (s *Store) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}
