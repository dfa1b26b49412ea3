package views

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

func TestStatusPage(t *testing.T) {
	var buf bytes.Buffer
	err := StatusPage(StatusData{
		Now:         time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		StoreDriver: "sqlite",
		Entities: []core.EntityInfo{
			{Label: "Tasks", FileName: "tasks_cleaned.csv", IDField: "TaskID", Columns: []string{"TaskID", "Duration"}},
		},
		Sessions: []core.SessionInfo{
			{ID: "s-1", Counts: map[core.EntityKind]int{core.KindTasks: 4}, Summary: core.Summary{Errors: 2}},
		},
		Uploads: core.UploadLimiterStatus{Active: 1, MaxConcurrent: 5},
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "2024-05-01T08:00:00Z")
	assert.Contains(t, html, "<td>tasks_cleaned.csv</td>")
	assert.Contains(t, html, "<td>TaskID, Duration</td>")
	assert.Contains(t, html, "Sessions (1)")
	assert.Contains(t, html, "<td>s-1</td><td>0</td><td>0</td><td>4</td>")
	assert.Contains(t, html, "1 of 5")
}

func TestStatusPage_NoSessions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, StatusPage(StatusData{}).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "No active sessions.")
}

func TestErrorAlert_Escapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ErrorAlert("<b>bad</b>", "", "SES001").Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "&lt;b&gt;bad&lt;/b&gt;")
	assert.NotContains(t, buf.String(), "<p>")
	assert.Contains(t, buf.String(), "Code: SES001")
}
