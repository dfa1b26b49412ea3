// Package persist provides snapshot stores for saving cleaning sessions.
//
// Three drivers are available, selected by STORE_DRIVER:
//
//   - memory: process-local map, lost on restart (default)
//   - sqlite: single file via modernc.org/sqlite, no cgo required
//   - postgres: shared database via a pgx connection pool
//
// Every store implements core.SnapshotStore and reports unknown sessions
// with core.ErrSnapshotNotFound.
package persist

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JonMunkholm/datacleaner/internal/config"
	"github.com/JonMunkholm/datacleaner/internal/core"
)

// Open creates the snapshot store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (core.SnapshotStore, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverMemory, "":
		slog.Info("using in-memory snapshot store")
		return NewMemory(), nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.Database)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// Memory keeps snapshots in a map.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) SaveSnapshot(_ context.Context, sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sessionID] = bytes.Clone(data)
	return nil
}

func (m *Memory) LoadSnapshot(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, sessionID)
	}
	return bytes.Clone(data), nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[sessionID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, sessionID)
	}
	delete(m.data, sessionID)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
