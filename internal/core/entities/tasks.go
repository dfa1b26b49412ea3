package entities

import "github.com/JonMunkholm/datacleaner/internal/core"

func init() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Kind:     core.KindTasks,
			Label:    "Tasks",
			FileName: "tasks_cleaned.csv",
			IDField:  "TaskID",
			Order:    3,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "TaskID", Type: core.FieldText, Required: true},
			{Name: "TaskName", Type: core.FieldText, Required: true},
			{Name: "Category", Type: core.FieldText, Required: true},
			{Name: "Duration", Type: core.FieldInteger, Required: true},
			{Name: "RequiredSkills", Type: core.FieldList, Required: true},
			{Name: "PreferredPhases", Type: core.FieldPhases, Required: true},
			{Name: "MaxConcurrent", Type: core.FieldInteger, Required: true},
		},
		Decode: decodeTask,
	})
}

func decodeTask(cells core.Cells) core.Record {
	r := newRow(cells)
	t := core.Task{
		TaskID:          r.text("TaskID"),
		TaskName:        r.text("TaskName"),
		Category:        r.text("Category"),
		Duration:        r.int4("Duration"),
		RequiredSkills:  r.list("RequiredSkills"),
		PreferredPhases: r.phases("PreferredPhases"),
		MaxConcurrent:   r.int4("MaxConcurrent"),
	}
	t.Extra = r.extra()
	return t
}
