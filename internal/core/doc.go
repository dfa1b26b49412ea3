// Package core provides the business logic for cleaning client, worker and
// task data before it is handed to a scheduler.
//
// This package contains all domain logic independent of any UI or transport
// layer. It is used by the web server, the command-line tool and tests
// without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Entity Definitions: Registered via the registry, each entity kind has
//     field specs, an export file name and a decoder from cells to records.
//   - Parsing: CSV and XLSX files are mapped to canonical headers and decoded.
//   - Validation: Every state change is followed by a full re-validation.
//   - Store: An undo/redo history of immutable [State] snapshots.
//   - Service: Sessions, each owning a [Store], for concurrent frontends.
//
// # Entity Registry
//
// Entity kinds are registered at init time using [Register] (see the
// entities subpackage):
//
//	core.Register(core.EntityDefinition{
//	    Info: core.EntityInfo{Kind: core.KindTasks, FileName: "tasks_cleaned.csv", IDField: "TaskID"},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "TaskID", Type: core.FieldText, Required: true},
//	        {Name: "Duration", Type: core.FieldInteger, Required: true},
//	    },
//	    Decode: decodeTask,
//	})
//
// # Upload Flow
//
//  1. Client calls [Service.Upload] with an io.Reader
//  2. The reader is wrapped with BOM skipping, UTF-8 sanitization and a size limit
//  3. Headers are mapped and the entity kind detected; malformed rows are skipped
//  4. The rows replace that kind's data in one undoable [Store.Dispatch]
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE007: File errors (size, format, headers)
//   - VAL001-VAL003: Request errors (entity, row, fix names)
//   - SES001-SES004: Session and snapshot errors
//   - UPL001-UPL003: Upload capacity, cancellation and timeouts
//   - RUL001-RUL005: Rule and priority errors
//
// Validation findings are not Go errors: they are [ValidationError] values
// stored on the [State] and shown next to the offending cell.
package core
