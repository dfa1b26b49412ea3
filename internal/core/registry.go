package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[EntityKind]EntityDefinition)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics if the kind is already registered.
func Register(def EntityDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Kind]; exists {
		panic(fmt.Sprintf("entity already registered: %s", def.Info.Kind))
	}
	if def.Decode == nil {
		panic(fmt.Sprintf("entity %s registered without a decoder", def.Info.Kind))
	}

	if len(def.Info.Columns) == 0 && len(def.FieldSpecs) > 0 {
		def.Info.Columns = make([]string, len(def.FieldSpecs))
		for i, spec := range def.FieldSpecs {
			def.Info.Columns[i] = spec.Name
		}
	}

	registry[def.Info.Kind] = def
}

// Get returns an entity definition by kind.
func Get(kind EntityKind) (EntityDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// MustGet returns the definition for kind or an ErrUnknownEntity error.
func MustGet(kind EntityKind) (EntityDefinition, error) {
	def, ok := Get(kind)
	if !ok {
		return EntityDefinition{}, fmt.Errorf("%w: %s", ErrUnknownEntity, kind)
	}
	return def, nil
}

// All returns all registered definitions sorted by Info.Order.
// Header matching walks this order, so clients come before workers and tasks.
func All() []EntityDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EntityDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Order != result[j].Info.Order {
			return result[i].Info.Order < result[j].Info.Order
		}
		return result[i].Info.Kind < result[j].Info.Kind
	})

	return result
}

// Kinds returns the registered kinds in matching order.
func Kinds() []EntityKind {
	defs := All()
	kinds := make([]EntityKind, len(defs))
	for i, d := range defs {
		kinds[i] = d.Info.Kind
	}
	return kinds
}

// EntityCount returns the number of registered entity kinds.
func EntityCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered entities.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[EntityKind]EntityDefinition)
}
