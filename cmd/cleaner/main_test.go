package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

const (
	clientsCSV = "ClientID,ClientName,PriorityLevel,RequestedTaskIDs,GroupTag,AttributesJSON\n" +
		"C1,Acme,3,T1,GroupA,{}\n"
	workersCSV = "WorkerID,WorkerName,Skills,AvailableSlots,MaxLoadPerPhase,WorkerGroup,QualificationLevel\n" +
		"W1,Ann,sql,\"[1,2]\",1,GroupA,4\n"
	tasksCSV = "TaskID,TaskName,Category,Duration,RequiredSkills,PreferredPhases,MaxConcurrent\n" +
		"T1,Audit,Finance,1,sql,[1],1\n"
)

func inputDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	return dir
}

func cleanDir(t *testing.T) string {
	return inputDir(t, map[string]string{
		"clients.csv": clientsCSV,
		"workers.csv": workersCSV,
		"tasks.csv":   tasksCSV,
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate_Clean(t *testing.T) {
	out, err := run(t, "validate", "--dir", cleanDir(t))
	require.NoError(t, err, out)
	assert.Contains(t, out, "TOTAL")
	assert.NotContains(t, out, "MESSAGE")
}

func TestValidate_Blocking(t *testing.T) {
	dir := inputDir(t, map[string]string{
		"clients.csv": clientsCSV,
		"workers.csv": workersCSV,
		"tasks.csv":   tasksCSV + "T1,Again,Finance,1,sql,[1],1\n",
	})

	out, err := run(t, "validate", "--dir", dir)
	assert.ErrorIs(t, err, errBlocking)
	assert.Contains(t, out, "MESSAGE")
	assert.Contains(t, out, "TaskID")
}

func TestValidate_JSON(t *testing.T) {
	dir := cleanDir(t)
	out, err := run(t, "validate", "--json",
		"--clients", filepath.Join(dir, "clients.csv"),
		"--workers", filepath.Join(dir, "workers.csv"),
	)
	require.NoError(t, err, out)

	var got validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Blocking)
	assert.Len(t, got.Files, 2)
	assert.Equal(t, 1, got.Counts[core.KindClients])
	assert.Equal(t, 0, got.Counts[core.KindTasks])
}

func TestValidate_WriteFailed(t *testing.T) {
	dir := inputDir(t, map[string]string{
		"clients.csv": clientsCSV + "C2,Short\n",
		"workers.csv": workersCSV,
		"tasks.csv":   tasksCSV,
	})

	out, err := run(t, "validate", "--dir", dir, "--write-failed")
	require.NoError(t, err, out)
	assert.Contains(t, out, "skipped")
	assert.FileExists(t, filepath.Join(dir, "clients - failed.csv"))

	// The report is not picked up as input on the next scan.
	_, err = run(t, "validate", "--dir", dir)
	require.NoError(t, err)
}

func TestValidate_NoInputs(t *testing.T) {
	_, err := run(t, "validate", "--dir", t.TempDir())
	assert.ErrorContains(t, err, "no input files")
}

func TestSuggestAndFix(t *testing.T) {
	dir := inputDir(t, map[string]string{
		"clients.csv": strings.Replace(clientsCSV, "C1,Acme,3", "C1,Acme,9", 1),
		"workers.csv": workersCSV,
		"tasks.csv":   tasksCSV,
	})

	out, err := run(t, "suggest", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, string(core.FixPriorityRange))

	_, err = run(t, "validate", "--dir", dir)
	assert.ErrorIs(t, err, errBlocking)

	outDir := filepath.Join(t.TempDir(), "fixed")
	out, err = run(t, "fix", "--dir", dir, "--json", "--kind", string(core.FixPriorityRange), "--out", outDir)
	require.NoError(t, err, out)

	var got fixOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.RowsChanged)
	assert.False(t, got.Blocking)
	assert.NotEmpty(t, got.Written)

	data, err := os.ReadFile(filepath.Join(outDir, "clients_cleaned.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "C1,Acme,5")
}

func TestFix_UnknownKind(t *testing.T) {
	_, err := run(t, "fix", "--dir", cleanDir(t), "--kind", "bogus")
	assert.ErrorContains(t, err, "unknown fix")
}

func TestExport(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	out, err := run(t, "export", "--dir", cleanDir(t), "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	for _, name := range []string{"clients_cleaned.csv", "workers_cleaned.csv", "tasks_cleaned.csv", core.RulesConfigFileName} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CLEANER_DIR", cleanDir(t))
	t.Setenv("CLEANER_MAX_FILE_SIZE", "10")

	_, err := run(t, "validate")
	assert.ErrorIs(t, err, core.ErrFileTooLarge)
}

func TestDirWatcher(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)
	dw, err := newDirWatcher(dir, 50*time.Millisecond, func(_ context.Context, paths []string) {
		changes <- paths
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dw.Start(ctx)
	defer dw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clients_cleaned.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clients.csv"), []byte(clientsCSV), 0o644))

	select {
	case paths := <-changes:
		assert.Equal(t, []string{filepath.Join(dir, "clients.csv")}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestDisplayRow(t *testing.T) {
	assert.Equal(t, "-", displayRow(core.EntityWide))
	assert.Equal(t, "1", displayRow(0))
}
