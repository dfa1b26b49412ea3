package entities

import "github.com/JonMunkholm/datacleaner/internal/core"

func init() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{
			Kind:     core.KindClients,
			Label:    "Clients",
			FileName: "clients_cleaned.csv",
			IDField:  "ClientID",
			Order:    1,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: "ClientID", Type: core.FieldText, Required: true},
			{Name: "ClientName", Type: core.FieldText, Required: true},
			{Name: "PriorityLevel", Type: core.FieldInteger, Required: true},
			{Name: "RequestedTaskIDs", Type: core.FieldList, Required: true},
			{Name: "GroupTag", Type: core.FieldText, Required: true},
			{Name: "AttributesJSON", Type: core.FieldJSON, Required: true},
		},
		Decode: decodeClient,
	})
}

func decodeClient(cells core.Cells) core.Record {
	r := newRow(cells)
	c := core.Client{
		ClientID:         r.text("ClientID"),
		ClientName:       r.text("ClientName"),
		PriorityLevel:    r.int4("PriorityLevel"),
		RequestedTaskIDs: r.list("RequestedTaskIDs"),
		GroupTag:         r.text("GroupTag"),
		AttributesJSON:   r.text("AttributesJSON"),
	}
	c.Extra = r.extra()
	return c
}
