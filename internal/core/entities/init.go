// Package entities registers the client, worker and task definitions with
// the core registry. Import this package to ensure all entities are
// registered.
package entities
