package core_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/datacleaner/internal/core"
	_ "github.com/JonMunkholm/datacleaner/internal/core/entities"
)

const clientsCSV = `ClientID,ClientName,PriorityLevel,RequestedTaskIDs,GroupTag,AttributesJSON
C1,Acme Corp,3,"T1, T2",GroupA,"{""tier"": ""gold""}"
C2,Globex,5,T2,GroupB,{}
`

const workersCSV = `WorkerID,WorkerName,Skills,AvailableSlots,MaxLoadPerPhase,WorkerGroup,QualificationLevel
W1,Ann,"sql, excel","[1,2,3]",2,GroupA,4
W2,Bob,"python, sql",2-5,1,GroupB,3
`

const tasksCSV = `TaskID,TaskName,Category,Duration,RequiredSkills,PreferredPhases,MaxConcurrent
T1,Audit,Finance,2,sql,"[1,2]",1
T2,Report,Analytics,1,"python, sql",2-3,1
`

func parse(t *testing.T, kind core.EntityKind, data string) *core.Batch {
	t.Helper()
	b, err := core.ParseCSV(strings.NewReader(data), core.ParseOptions{Kind: kind, FileName: string(kind) + ".csv"})
	require.NoError(t, err)
	return b
}

// loadedState returns a validated state holding the three sample files.
func loadedState(t *testing.T) *core.State {
	t.Helper()
	st := core.NewState()
	st.Clients = core.RecordsAs[core.Client](parse(t, core.KindClients, clientsCSV).Records)
	st.Workers = core.RecordsAs[core.Worker](parse(t, core.KindWorkers, workersCSV).Records)
	st.Tasks = core.RecordsAs[core.Task](parse(t, core.KindTasks, tasksCSV).Records)
	errs, err := core.ValidateAll(context.Background(), st)
	require.NoError(t, err)
	st.ValidationErrors = errs
	return st
}

// loadedStore returns a store whose history holds one upload per entity.
func loadedStore(t *testing.T) *core.Store {
	t.Helper()
	s := core.NewStore(50)
	ctx := context.Background()
	for _, up := range []struct {
		kind core.EntityKind
		data string
	}{
		{core.KindClients, clientsCSV},
		{core.KindWorkers, workersCSV},
		{core.KindTasks, tasksCSV},
	} {
		b := parse(t, up.kind, up.data)
		a, err := core.ReplaceRecords(b.Kind, b.Records, b.Headers)
		require.NoError(t, err)
		_, err = s.Dispatch(ctx, a)
		require.NoError(t, err)
	}
	return s
}

// storeWith returns a store holding only the records of b.
func storeWith(t *testing.T, b *core.Batch) *core.Store {
	t.Helper()
	s := core.NewStore(10)
	a, err := core.ReplaceRecords(b.Kind, b.Records, b.Headers)
	require.NoError(t, err)
	_, err = s.Dispatch(context.Background(), a)
	require.NoError(t, err)
	return s
}

// findings filters errors by entity, row and field.
func findings(errs []core.ValidationError, entity core.EntityKind, row int, field string) []core.ValidationError {
	var out []core.ValidationError
	for _, e := range errs {
		if e.Entity == entity && e.Row == row && e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

func messages(errs []core.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}
