package web

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JonMunkholm/datacleaner/internal/config"
	"github.com/JonMunkholm/datacleaner/internal/core"
	_ "github.com/JonMunkholm/datacleaner/internal/core/entities"
	"github.com/JonMunkholm/datacleaner/internal/persist"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	clientsCSV = "ClientID,ClientName,PriorityLevel,RequestedTaskIDs,GroupTag,AttributesJSON\n" +
		"C1,Acme Corp,3,\"T1, T2\",GroupA,{}\n"
	workersCSV = "WorkerID,WorkerName,Skills,AvailableSlots,MaxLoadPerPhase,WorkerGroup,QualificationLevel\n" +
		"W1,Ann,\"sql, python\",\"[1,2,3]\",2,GroupA,4\n"
	tasksCSV = "TaskID,TaskName,Category,Duration,RequiredSkills,PreferredPhases,MaxConcurrent\n" +
		"T1,Audit,Finance,1,sql,\"[1,2]\",1\n" +
		"T2,Report,Analytics,1,python,2-3,1\n"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Rate.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	opts := core.ServiceOptions{MaxFileSize: cfg.Upload.MaxFileSize}
	if cfg.Store.Driver == config.DriverMemory {
		opts.Snapshots = persist.NewMemory()
	}
	srv := NewServer(core.NewService(opts), cfg)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, srv *Server, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return do(t, srv, method, path, body, "application/json")
}

func upload(t *testing.T, srv *Server, path, filename, data string, mapping map[string]int) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(data))
		require.NoError(t, err)
	}
	if mapping != nil {
		raw, err := json.Marshal(mapping)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("mapping", string(raw)))
	}
	require.NoError(t, mw.Close())
	return do(t, srv, http.MethodPost, path, &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := decode[core.SessionInfo](t, rec)
	require.NotEmpty(t, info.ID)
	assert.Equal(t, "/api/sessions/"+info.ID, rec.Header().Get("Location"))
	return info.ID
}

func uploadAll(t *testing.T, srv *Server, id string) {
	t.Helper()
	for name, data := range map[string]string{"clients.csv": clientsCSV, "workers.csv": workersCSV, "tasks.csv": tasksCSV} {
		rec := upload(t, srv, "/api/sessions/"+id+"/upload/auto", name, data, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestHealthAndStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Sessions (1)")
	assert.Contains(t, rec.Body.String(), "workers_cleaned.csv")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	rec = do(t, srv, http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, config.DriverMemory, status.StoreDriver)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, 5, status.Uploads.MaxConcurrent)

	rec = do(t, srv, http.MethodGet, "/api/entities", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.EntityInfo](t, rec), 3)
}

func TestCSPDisabled(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Security.EnableCSP = false })
	rec := do(t, srv, http.MethodGet, "/healthz", nil, "")
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/sessions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.SessionInfo](t, rec), 1)

	rec = do(t, srv, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "SES001", resp.Code)
	assert.Equal(t, "Session not found", resp.Message)
}

func TestUploadEditUndo(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)
	base := "/api/sessions/" + id

	rec := upload(t, srv, base+"/upload/clients", "clients.csv", clientsCSV, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[core.UploadResult](t, rec)
	assert.Equal(t, core.KindClients, res.Kind)
	assert.Equal(t, 1, res.TotalRows)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, core.MsgTasksNotUploaded, res.Errors[0].Message)

	uploadAll(t, srv, id)
	rec = do(t, srv, http.MethodGet, base+"/validation", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[ValidationResponse](t, rec)
	assert.Empty(t, v.Errors)
	assert.False(t, v.Blocking)

	rec = doJSON(t, srv, http.MethodPut, base+"/data/workers/0", map[string]string{"QualificationLevel": "9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode[core.EntityData](t, rec)
	require.Len(t, data.Errors, 1)
	assert.Equal(t, core.MsgQualificationRange, data.Errors[0].Message)
	assert.Equal(t, "9", data.Rows[0]["QualificationLevel"])

	rec = do(t, srv, http.MethodPost, base+"/undo", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[historyResponse](t, rec)
	assert.True(t, hist.Changed)
	assert.True(t, hist.CanRedo)

	rec = do(t, srv, http.MethodGet, base+"/data/workers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", decode[core.EntityData](t, rec).Rows[0]["QualificationLevel"])

	rec = do(t, srv, http.MethodPost, base+"/redo", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[historyResponse](t, rec).Changed)

	rec = doJSON(t, srv, http.MethodPut, base+"/data/workers/7", map[string]string{"WorkerName": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL002", decode[ErrorResponse](t, rec).Code)

	rec = doJSON(t, srv, http.MethodPut, base+"/data/workers/abc", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code)
}

func TestUploadWithMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)

	data := "Id,Title,Kind,Len,Needs,Phases,Max\nT9,Audit,Finance,2,sql,1,1\n"
	mapping := map[string]int{
		"TaskID": 0, "TaskName": 1, "Category": 2, "Duration": 3,
		"RequiredSkills": 4, "PreferredPhases": 5, "MaxConcurrent": 6,
	}
	rec := upload(t, srv, "/api/sessions/"+id+"/upload/tasks", "renamed.csv", data, mapping)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/data/tasks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T9", decode[core.EntityData](t, rec).Rows[0]["TaskID"])
}

func TestUploadErrors(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Upload.MaxFileSize = 64 })
	id := createSession(t, srv)
	base := "/api/sessions/" + id

	tests := []struct {
		name     string
		path     string
		filename string
		data     string
		status   int
		code     string
	}{
		{"unknown kind", base + "/upload/robots", "x.csv", tasksCSV, http.StatusBadRequest, "VAL001"},
		{"missing file", base + "/upload/tasks", "", "", http.StatusBadRequest, "FILE006"},
		{"too large", base + "/upload/tasks", "tasks.csv", tasksCSV, http.StatusRequestEntityTooLarge, "FILE001"},
		{"unsupported format", base + "/upload/tasks", "tasks.json", "{}", http.StatusBadRequest, "FILE004"},
		{"unknown session", "/api/sessions/nope/upload/tasks", "t.csv", "a,b\n1,2\n", http.StatusNotFound, "SES001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, srv, tt.path, tt.filename, tt.data, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestPreview(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)
	uploadAll(t, srv, id)

	bad := strings.Replace(tasksCSV, "T2,Report,Analytics,1", "T2,Report,Analytics,0", 1)
	rec := upload(t, srv, "/api/sessions/"+id+"/preview/auto", "tasks.csv", bad, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[core.UploadResult](t, rec)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, core.MsgDurationInvalid, res.Errors[0].Message)

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/validation", nil, "")
	assert.Empty(t, decode[ValidationResponse](t, rec).Errors)
}

func TestFixes(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)
	uploadAll(t, srv, id)
	base := "/api/sessions/" + id

	rec := doJSON(t, srv, http.MethodPut, base+"/data/clients/0", map[string]string{"PriorityLevel": "9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, base+"/fixes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	fixes := decode[[]core.FixSuggestion](t, rec)
	require.Len(t, fixes, 1)
	assert.Equal(t, core.FixPriorityRange, fixes[0].Kind)

	rec = doJSON(t, srv, http.MethodPost, base+"/fixes", map[string][]string{"kinds": {"bogus"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL003", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, base+"/fixes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		RowsChanged int  `json:"rowsChanged"`
		Blocking    bool `json:"blocking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.RowsChanged)
	assert.False(t, out.Blocking)
}

func TestRulesAndPriorities(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)
	uploadAll(t, srv, id)
	base := "/api/sessions/" + id

	rec := doJSON(t, srv, http.MethodPost, base+"/rules", map[string]any{
		"type":       "coRun",
		"parameters": map[string]any{"tasks": []string{"T1", "T2"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[core.Rule](t, rec)
	assert.True(t, rule.Active)

	rec = doJSON(t, srv, http.MethodPost, base+"/rules", map[string]any{
		"type":       "coRun",
		"parameters": map[string]any{"tasks": []string{"T1", "T404"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RUL001", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, base+"/rules/"+rule.ID+"/toggle", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[core.Rule](t, rec).Active)

	rec = do(t, srv, http.MethodPost, base+"/rules/missing/toggle", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, base+"/rules", nil, "")
	assert.Len(t, decode[[]core.Rule](t, rec), 1)

	rec = do(t, srv, http.MethodPost, base+"/priorities/preset/Fair%20Distribution", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ps := decode[[]core.Priority](t, rec)
	assert.InDelta(t, 0.3, ps[2].Weight, 1e-9)

	rec = doJSON(t, srv, http.MethodPost, base+"/priorities/reorder", map[string]int{"from": 4, "to": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", decode[[]core.Priority](t, rec)[0].ID)

	ps[0].Weight = 0.9
	rec = doJSON(t, srv, http.MethodPut, base+"/priorities", ps)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RUL004", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, base+"/rules/import?format=yaml", strings.NewReader(
		"rules:\n  - type: phaseWindow\n    name: Early audit\n    active: true\n    parameters:\n      taskId: T1\n      phases: [1, 2]\n"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodGet, base+"/rules", nil, "")
	rules := decode[[]core.Rule](t, rec)
	require.Len(t, rules, 1)
	assert.Equal(t, "Early audit", rules[0].Name)
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)
	uploadAll(t, srv, id)
	base := "/api/sessions/" + id

	rec := do(t, srv, http.MethodGet, base+"/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"clients_cleaned.csv", "workers_cleaned.csv", "tasks_cleaned.csv", "rules_config.json"}, names)

	for _, name := range []string{"tasks.csv", "tasks_cleaned.csv"} {
		rec = do(t, srv, http.MethodGet, base+"/export/"+name, nil, "")
		require.Equal(t, http.StatusOK, rec.Code, name)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="tasks_cleaned.csv"`)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "TaskID,TaskName"), rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, base+"/export/rules_config.yaml", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "priorities:")

	rec = do(t, srv, http.MethodGet, base+"/export/rules_config.json", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg core.RulesConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 2, cfg.Metadata.TotalTasks)

	rec = do(t, srv, http.MethodGet, base+"/export/notes.txt", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveRestore(t *testing.T) {
	srv := newTestServer(t, nil)
	id := createSession(t, srv)
	uploadAll(t, srv, id)
	base := "/api/sessions/" + id

	rec := do(t, srv, http.MethodPost, base+"/restore", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SES003", decode[ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, base+"/save", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPut, base+"/data/workers/0", map[string]string{"QualificationLevel": "9"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, base+"/restore", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[core.SessionInfo](t, rec)
	assert.Equal(t, 2, info.Counts[core.KindTasks])
	assert.Zero(t, info.Summary.Errors, "the edit after saving is gone")
	assert.False(t, info.CanUndo)
}

func TestSaveWithoutStore(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Store.Driver = "none" })
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/save", nil, "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "SES004", decode[ErrorResponse](t, rec).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/sessions", nil, "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.RequestsPerMinute = 2
	})
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/healthz", nil, "").Code)
}

func TestRespondError_Formats(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	srv.fail(rec, req, core.ErrSessionNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
	assert.Contains(t, rec.Body.String(), "Code: SES001")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	srv.fail(rec, req, core.ErrTooManyUploads)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "System is busy processing other uploads (UPL001)\n", rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrSessionNotFound, http.StatusNotFound},
		{core.ErrRuleNotFound, http.StatusNotFound},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrTooManySessions, http.StatusServiceUnavailable},
		{core.ErrNoSnapshotStore, http.StatusNotImplemented},
		{core.ErrUnknownHeaders, http.StatusBadRequest},
		{core.ErrWeightsExceedTotal, http.StatusBadRequest},
		{badRequest("x"), http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
