package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/datacleaner/internal/core"
)

// dirtyState returns the sample data with one problem per fix kind.
func dirtyState(t *testing.T) *core.State {
	t.Helper()
	st := loadedState(t)
	st.Clients[0].RequestedTaskIDs = []string{"T1", "T404"}
	st.Clients[1].AttributesJSON = "vip customer"
	st.Clients[1].PriorityLevel = core.Int4(9)
	st.Workers[1].MaxLoadPerPhase = core.Int4(6)
	st.Workers[1].AvailableSlots = []int{1, 2, 9}
	st.Tasks[0].Duration = core.Int4(0)

	errs, err := core.ValidateAll(context.Background(), st)
	require.NoError(t, err)
	st.ValidationErrors = errs
	return st
}

func TestSuggestFixes(t *testing.T) {
	st := dirtyState(t)

	got := core.SuggestFixes(st.ValidationErrors)
	kinds := make([]core.FixKind, len(got))
	for i, s := range got {
		kinds[i] = s.Kind
		assert.NotEmpty(t, s.ErrorIDs, s.Kind)
	}
	assert.Equal(t, core.FixKinds(), kinds)

	assert.Empty(t, core.SuggestFixes(loadedState(t).ValidationErrors))
}

func TestApplyFixesTo(t *testing.T) {
	st := dirtyState(t)

	n := core.ApplyFixesTo(st, nil)
	assert.Equal(t, 5, n)

	assert.Equal(t, []string{"T1"}, st.Clients[0].RequestedTaskIDs)
	assert.JSONEq(t, `{"message": "vip customer"}`, st.Clients[1].AttributesJSON)
	assert.Equal(t, core.Int4(5), st.Clients[1].PriorityLevel)
	assert.Equal(t, core.Int4(2), st.Workers[1].MaxLoadPerPhase, "clamped to the in-range slots")
	assert.Equal(t, core.Int4(1), st.Tasks[0].Duration)

	errs, err := core.ValidateAll(context.Background(), st)
	require.NoError(t, err)
	assert.Empty(t, core.SuggestFixes(errs), "every suggested fix resolves its findings")
	assert.Zero(t, core.ApplyFixesTo(st, nil), "fixes are idempotent")
}

func TestApplyFixesTo_Selected(t *testing.T) {
	st := dirtyState(t)

	n := core.ApplyFixesTo(st, []core.FixKind{core.FixInvalidDurations})
	assert.Equal(t, 1, n)
	assert.Equal(t, core.Int4(1), st.Tasks[0].Duration)
	assert.Equal(t, core.Int4(9), st.Clients[1].PriorityLevel, "other fixes are not applied")
}

func TestApplyFixesTo_KeepsReferencesWithoutTasks(t *testing.T) {
	st := dirtyState(t)
	st.Tasks = nil

	assert.Zero(t, core.ApplyFixesTo(st, []core.FixKind{core.FixUnknownTaskRefs}))
	assert.Equal(t, []string{"T1", "T404"}, st.Clients[0].RequestedTaskIDs)
}

func TestParseFixKind(t *testing.T) {
	k, err := core.ParseFixKind("malformed-json")
	require.NoError(t, err)
	assert.Equal(t, core.FixMalformedJSON, k)

	_, err = core.ParseFixKind("everything")
	assert.ErrorContains(t, err, "unknown fix")
}
