package entities

import "github.com/JonMunkholm/datacleaner/internal/core"

func init() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Kind:     core.KindWorkers,
			Label:    "Workers",
			FileName: "workers_cleaned.csv",
			IDField:  "WorkerID",
			Order:    2,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "WorkerID", Type: core.FieldText, Required: true},
			{Name: "WorkerName", Type: core.FieldText, Required: true},
			{Name: "Skills", Type: core.FieldList, Required: true},
			{Name: "AvailableSlots", Type: core.FieldPhases, Required: true},
			{Name: "MaxLoadPerPhase", Type: core.FieldInteger, Required: true},
			{Name: "WorkerGroup", Type: core.FieldText, Required: true},
			{Name: "QualificationLevel", Type: core.FieldInteger, Required: true},
		},
		Decode: decodeWorker,
	})
}

func decodeWorker(cells core.Cells) core.Record {
	r := newRow(cells)
	w := core.Worker{
		WorkerID:           r.text("WorkerID"),
		WorkerName:         r.text("WorkerName"),
		Skills:             r.list("Skills"),
		AvailableSlots:     r.phases("AvailableSlots"),
		MaxLoadPerPhase:    r.int4("MaxLoadPerPhase"),
		WorkerGroup:        r.text("WorkerGroup"),
		QualificationLevel: r.int4("QualificationLevel"),
	}
	w.Extra = r.extra()
	return w
}
