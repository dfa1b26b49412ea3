package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UploadTimeout is the default maximum duration for parsing one upload.
var UploadTimeout = 2 * time.Minute

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when MaxSessions is reached.
	ErrTooManySessions = errors.New("too many sessions")

	// ErrNoSnapshotStore is returned by Save/Restore without a snapshot store.
	ErrNoSnapshotStore = errors.New("snapshot store not configured")

	// ErrSnapshotNotFound is returned by snapshot stores for unknown sessions.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// SnapshotStore persists serialized session state.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sessionID string, data []byte) error
	LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
	Close() error
}

// ServiceOptions configures a Service. Zero values fall back to defaults.
type ServiceOptions struct {
	HistoryLimit         int
	MaxSessions          int // zero means unlimited
	IdleTimeout          time.Duration
	MaxFileSize          int64
	MaxConcurrentUploads int
	MaxUploadWait        time.Duration
	UploadTimeout        time.Duration
	Snapshots            SnapshotStore
	Now                  func() time.Time
}

// Service manages cleaning sessions. Each session owns a Store; the service
// is safe for concurrent use.
type Service struct {
	opts    ServiceOptions
	limiter *UploadLimiter

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id        string
	store     *Store
	createdAt time.Time

	mu         sync.Mutex
	lastAccess time.Time
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// NewService creates a new Service instance.
func NewService(opts ServiceOptions) *Service {
	if opts.HistoryLimit < 2 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = UploadTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		opts:     opts,
		limiter:  NewUploadLimiter(opts.MaxConcurrentUploads, opts.MaxUploadWait),
		sessions: make(map[string]*session),
	}
}

// SessionInfo summarizes a session.
type SessionInfo struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"createdAt"`
	LastAccess  time.Time          `json:"lastAccess"`
	Counts      map[EntityKind]int `json:"counts"`
	Rules       int                `json:"rules"`
	Summary     Summary            `json:"summary"`
	CanUndo     bool               `json:"canUndo"`
	CanRedo     bool               `json:"canRedo"`
	HistoryLen  int                `json:"historyLength"`
	HistoryAt   int                `json:"historyIndex"`
	Persistable bool               `json:"persistable"`
}

// CreateSession starts an empty session.
func (s *Service) CreateSession(ctx context.Context) (SessionInfo, error) {
	now := s.opts.Now()
	sess := &session{
		id:         uuid.NewString(),
		store:      NewStore(s.opts.HistoryLimit),
		createdAt:  now,
		lastAccess: now,
	}

	s.mu.Lock()
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		s.mu.Unlock()
		if s.ExpireIdle(now) == 0 {
			return SessionInfo{}, fmt.Errorf("%w: limit %d", ErrTooManySessions, s.opts.MaxSessions)
		}
		s.mu.Lock()
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	slog.InfoContext(ctx, "session created", "session_id", sess.id)
	return s.info(sess), nil
}

// Session returns a summary of the session.
func (s *Service) Session(id string) (SessionInfo, error) {
	sess, err := s.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(sess), nil
}

// Sessions lists every live session ordered by creation time.
func (s *Service) Sessions() []SessionInfo {
	s.mu.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })
	out := make([]SessionInfo, len(all))
	for i, sess := range all {
		out[i] = s.info(sess)
	}
	return out
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// DeleteSession removes a session and its saved snapshot, if any.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if s.opts.Snapshots != nil {
		if err := s.opts.Snapshots.DeleteSnapshot(ctx, id); err != nil && !errors.Is(err, ErrSnapshotNotFound) {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	slog.InfoContext(ctx, "session deleted", "session_id", id)
	return nil
}

// State returns a copy of the session's current state.
func (s *Service) State(id string) (*State, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sess.store.Current(), nil
}

func (s *Service) get(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(s.opts.Now())
	return sess, nil
}

func (s *Service) info(sess *session) SessionInfo {
	st := sess.store.Current()
	return SessionInfo{
		ID:          sess.id,
		CreatedAt:   sess.createdAt,
		LastAccess:  sess.idleSince(),
		Counts:      st.Counts(),
		Rules:       len(st.Rules),
		Summary:     Summarize(st.ValidationErrors),
		CanUndo:     sess.store.CanUndo(),
		CanRedo:     sess.store.CanRedo(),
		HistoryLen:  sess.store.HistoryLen(),
		HistoryAt:   sess.store.Index(),
		Persistable: s.opts.Snapshots != nil,
	}
}

func (s *Service) dispatch(ctx context.Context, id string, a Action) (*State, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	st, err := sess.store.Dispatch(ctx, a)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "action dispatched",
		"session_id", id,
		"action", a.Name(),
		"validation_errors", len(st.ValidationErrors),
	)
	return st, nil
}

// Dispatch applies a raw action to the session.
func (s *Service) Dispatch(ctx context.Context, id string, a Action) (*State, error) {
	return s.dispatch(ctx, id, a)
}

// UploadRequest describes one uploaded file.
type UploadRequest struct {
	Kind     EntityKind // empty means detect from headers
	FileName string
	Body     io.Reader
	Mapping  map[string]int
}

// Upload parses a file and replaces the session's rows of that kind.
func (s *Service) Upload(ctx context.Context, id string, req UploadRequest) (*UploadResult, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	batch, err := s.parse(ctx, req)
	if err != nil {
		return nil, err
	}

	action, err := ReplaceRecords(batch.Kind, batch.Records, batch.Headers)
	if err != nil {
		return nil, err
	}
	st, err := s.dispatch(ctx, id, action)
	if err != nil {
		return nil, err
	}

	result := buildUploadResult(batch, st.ValidationErrors)
	slog.InfoContext(ctx, "upload committed",
		"session_id", id,
		"kind", batch.Kind,
		"file", req.FileName,
		"rows", len(batch.Records),
		"skipped", result.Skipped,
		"errors", result.Summary.Errors,
		"warnings", result.Summary.Warnings,
	)
	return result, nil
}

// Preview parses a file and validates it against the session's other data
// without changing the session.
func (s *Service) Preview(ctx context.Context, id string, req UploadRequest) (*UploadResult, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	batch, err := s.parse(ctx, req)
	if err != nil {
		return nil, err
	}
	action, err := ReplaceRecords(batch.Kind, batch.Records, batch.Headers)
	if err != nil {
		return nil, err
	}

	// A throwaway store keeps the preview out of the session history.
	scratch := NewStoreFrom(sess.store.Current(), 2)
	st, err := scratch.Dispatch(ctx, action)
	if err != nil {
		return nil, err
	}
	return buildUploadResult(batch, st.ValidationErrors), nil
}

func (s *Service) parse(ctx context.Context, req UploadRequest) (*Batch, error) {
	if req.Body == nil {
		return nil, errors.New("no file provided")
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()

	start := time.Now()
	batch, err := ParseFile(ContextReader(ctx, req.Body), ParseOptions{
		Kind:     req.Kind,
		FileName: req.FileName,
		Mapping:  req.Mapping,
		MaxBytes: s.opts.MaxFileSize,
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.FileName, err)
	}
	slog.DebugContext(ctx, "file parsed",
		"file", req.FileName,
		"kind", batch.Kind,
		"rows", len(batch.Records),
		"failed_rows", len(batch.FailedRows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return batch, nil
}

func buildUploadResult(b *Batch, all []ValidationError) *UploadResult {
	errs := make([]ValidationError, 0)
	for _, e := range all {
		if e.Entity == b.Kind {
			errs = append(errs, e)
		}
	}
	return &UploadResult{
		Kind:       b.Kind,
		FileName:   b.FileName,
		Headers:    b.Headers,
		TotalRows:  len(b.Records) + len(b.FailedRows),
		Skipped:    len(b.FailedRows),
		FailedRows: b.FailedRows,
		Errors:     errs,
		Summary:    Summarize(errs),
	}
}

// EntityData is the rows of one entity with their findings.
type EntityData struct {
	Kind    EntityKind        `json:"kind"`
	Headers []string          `json:"headers"`
	Rows    []Cells           `json:"rows"`
	Errors  []ValidationError `json:"errors"`
}

// Data returns the rows of kind as cells in export column order.
func (s *Service) Data(id string, kind EntityKind) (*EntityData, error) {
	if _, err := MustGet(kind); err != nil {
		return nil, err
	}
	st, err := s.State(id)
	if err != nil {
		return nil, err
	}
	out := &EntityData{
		Kind:    kind,
		Headers: ExportHeaders(kind, st),
		Rows:    make([]Cells, 0, st.Len(kind)),
		Errors:  make([]ValidationError, 0),
	}
	for _, rec := range st.Records(kind) {
		out.Rows = append(out.Rows, rec.Cells())
	}
	for _, e := range st.ValidationErrors {
		if e.Entity == kind {
			out.Errors = append(out.Errors, e)
		}
	}
	return out, nil
}

// Edit merges patch into the cells of one row and re-decodes it. Values are
// cleaned as on upload; a missing value clears the field.
func (s *Service) Edit(ctx context.Context, id string, kind EntityKind, row int, patch map[string]string) (*State, error) {
	def, err := MustGet(kind)
	if err != nil {
		return nil, err
	}
	st, err := s.State(id)
	if err != nil {
		return nil, err
	}
	rec, err := st.Record(kind, row)
	if err != nil {
		return nil, err
	}

	cells := rec.Cells()
	for k, v := range patch {
		v = CleanCell(v)
		if IsMissing(v) {
			delete(cells, k)
			continue
		}
		cells[k] = v
	}

	action, err := UpdateRecord(row, def.Decode(cells))
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, id, action)
}

// Validation returns the session's current findings.
func (s *Service) Validation(id string) ([]ValidationError, Summary, error) {
	st, err := s.State(id)
	if err != nil {
		return nil, Summary{}, err
	}
	return st.ValidationErrors, Summarize(st.ValidationErrors), nil
}

// Undo steps the session back one snapshot.
func (s *Service) Undo(id string) (bool, error) {
	sess, err := s.get(id)
	if err != nil {
		return false, err
	}
	return sess.store.Undo(), nil
}

// Redo steps the session forward one snapshot.
func (s *Service) Redo(id string) (bool, error) {
	sess, err := s.get(id)
	if err != nil {
		return false, err
	}
	return sess.store.Redo(), nil
}

// Rules returns the session's rules.
func (s *Service) Rules(id string) ([]Rule, error) {
	st, err := s.State(id)
	if err != nil {
		return nil, err
	}
	return st.Rules, nil
}

// AddRule checks and stores a new rule.
func (s *Service) AddRule(ctx context.Context, id string, typ RuleType, name string, params RuleParams) (Rule, error) {
	st, err := s.State(id)
	if err != nil {
		return Rule{}, err
	}
	rule, err := NewRule(typ, name, params, st)
	if err != nil {
		return Rule{}, err
	}
	if _, err := s.dispatch(ctx, id, AddRule{Rule: rule}); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// UpdateRule replaces an existing rule after checking its parameters.
func (s *Service) UpdateRule(ctx context.Context, id string, rule Rule) (Rule, error) {
	st, err := s.State(id)
	if err != nil {
		return Rule{}, err
	}
	if st.ruleIndex(rule.ID) < 0 {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}
	if err := CheckRule(rule.Type, rule.Parameters, st); err != nil {
		return Rule{}, err
	}
	if rule.Name == "" {
		rule.Name = fmt.Sprintf("%s Rule", rule.Type)
	}
	rule.Description = DescribeRule(rule.Type, rule.Parameters)
	if _, err := s.dispatch(ctx, id, UpdateRule{Rule: rule}); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// ToggleRule flips a rule's active flag and returns the updated rule.
func (s *Service) ToggleRule(ctx context.Context, id, ruleID string) (Rule, error) {
	st, err := s.dispatch(ctx, id, ToggleRule{ID: ruleID})
	if err != nil {
		return Rule{}, err
	}
	return st.Rules[st.ruleIndex(ruleID)], nil
}

// ImportRules replaces the session's rules (and priorities, when present)
// with a decoded rules config.
func (s *Service) ImportRules(ctx context.Context, id string, r io.Reader, format ConfigFormat) (*State, error) {
	cfg, err := ReadRulesConfig(r, format)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, id, ImportRulesConfig{Rules: cfg.Rules, Priorities: cfg.Priorities})
}

// Priorities returns the session's priority criteria.
func (s *Service) Priorities(id string) ([]Priority, error) {
	st, err := s.State(id)
	if err != nil {
		return nil, err
	}
	return st.Priorities, nil
}

// SetPriorities normalizes and stores priority weights.
func (s *Service) SetPriorities(ctx context.Context, id string, ps []Priority) ([]Priority, error) {
	normalized, err := NormalizeWeights(ps)
	if err != nil {
		return nil, err
	}
	st, err := s.dispatch(ctx, id, SetPriorities{Priorities: normalized})
	if err != nil {
		return nil, err
	}
	return st.Priorities, nil
}

// ApplyPreset stores the weights of a named preset.
func (s *Service) ApplyPreset(ctx context.Context, id, name string) ([]Priority, error) {
	current, err := s.Priorities(id)
	if err != nil {
		return nil, err
	}
	ps, err := ApplyPreset(current, name)
	if err != nil {
		return nil, err
	}
	st, err := s.dispatch(ctx, id, SetPriorities{Priorities: ps})
	if err != nil {
		return nil, err
	}
	return st.Priorities, nil
}

// ReorderPriorities moves one criterion.
func (s *Service) ReorderPriorities(ctx context.Context, id string, from, to int) ([]Priority, error) {
	current, err := s.Priorities(id)
	if err != nil {
		return nil, err
	}
	ps, err := Reorder(current, from, to)
	if err != nil {
		return nil, err
	}
	st, err := s.dispatch(ctx, id, SetPriorities{Priorities: ps})
	if err != nil {
		return nil, err
	}
	return st.Priorities, nil
}

// SuggestFixes lists corrections for the session's current findings.
func (s *Service) SuggestFixes(id string) ([]FixSuggestion, error) {
	st, err := s.State(id)
	if err != nil {
		return nil, err
	}
	return SuggestFixes(st.ValidationErrors), nil
}

// ApplyFixes runs corrections as one undoable step and returns the number of
// changed rows. Nothing is recorded when no row changes.
func (s *Service) ApplyFixes(ctx context.Context, id string, kinds []FixKind) (int, error) {
	st, err := s.State(id)
	if err != nil {
		return 0, err
	}
	changed := ApplyFixesTo(st, kinds)
	if changed == 0 {
		return 0, nil
	}
	if _, err := s.dispatch(ctx, id, ApplyFixes{Kinds: kinds}); err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "fixes applied", "session_id", id, "rows_changed", changed)
	return changed, nil
}

// ExportBundle writes the zip export of the session.
func (s *Service) ExportBundle(id string, w io.Writer) error {
	st, err := s.State(id)
	if err != nil {
		return err
	}
	return WriteBundle(w, st, s.opts.Now())
}

// ExportCSV writes the cleaned CSV of one entity.
func (s *Service) ExportCSV(id string, kind EntityKind, w io.Writer) error {
	if _, err := MustGet(kind); err != nil {
		return err
	}
	st, err := s.State(id)
	if err != nil {
		return err
	}
	return ExportCSV(w, kind, st)
}

// ExportRules writes the rules config document.
func (s *Service) ExportRules(id string, w io.Writer, format ConfigFormat) error {
	st, err := s.State(id)
	if err != nil {
		return err
	}
	return WriteRulesConfig(w, BuildRulesConfig(st, s.opts.Now()), format)
}

// Save persists the session's current state.
func (s *Service) Save(ctx context.Context, id string) error {
	if s.opts.Snapshots == nil {
		return ErrNoSnapshotStore
	}
	st, err := s.State(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.opts.Snapshots.SaveSnapshot(ctx, id, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	slog.InfoContext(ctx, "session saved", "session_id", id, "bytes", len(data))
	return nil
}

// Restore loads a saved state into the session, creating the session when
// it no longer exists in memory. History restarts at the restored state.
func (s *Service) Restore(ctx context.Context, id string) (SessionInfo, error) {
	if s.opts.Snapshots == nil {
		return SessionInfo{}, ErrNoSnapshotStore
	}
	data, err := s.opts.Snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("load snapshot: %w", err)
	}

	st := NewState()
	if err := json.Unmarshal(data, st); err != nil {
		return SessionInfo{}, fmt.Errorf("decode snapshot: %w", err)
	}
	errs, err := ValidateAll(ctx, st)
	if err != nil {
		return SessionInfo{}, err
	}
	st.ValidationErrors = errs

	now := s.opts.Now()
	sess := &session{
		id:         id,
		store:      NewStoreFrom(st, s.opts.HistoryLimit),
		createdAt:  now,
		lastAccess: now,
	}
	s.mu.Lock()
	if old, ok := s.sessions[id]; ok {
		sess.createdAt = old.createdAt
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	slog.InfoContext(ctx, "session restored", "session_id", id)
	return s.info(sess), nil
}

// ExpireIdle removes sessions idle for longer than IdleTimeout and returns
// how many were removed. It does nothing when IdleTimeout is zero.
func (s *Service) ExpireIdle(now time.Time) int {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-s.opts.IdleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// UploadStatus reports the upload limiter state.
func (s *Service) UploadStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// Shutdown waits for in-flight uploads to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
