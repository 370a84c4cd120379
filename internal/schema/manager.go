package schema

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"market-sync/internal/series"
)

// Catalog is the part of the store the manager needs.
type Catalog interface {
	TableExists(ctx context.Context, table string) (bool, error)
	CreateTable(ctx context.Context, table string, columns []string) error
	Columns(ctx context.Context, table string) ([]string, error)
	AddColumn(ctx context.Context, table, column string) error
}

// Manager keeps one table per series with at least the columns it has been
// asked for. Columns are only ever added.
type Manager struct {
	cat Catalog
	log *zap.Logger

	mu sync.Mutex
	// known caches lower-cased column names per series once verified
	known map[string]map[string]struct{}
}

func NewManager(cat Catalog, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{cat: cat, log: log, known: make(map[string]map[string]struct{})}
}

// Ensure makes sure a table backs seriesID and carries every name in fields.
// Re-running it with a present field set is a no-op. Any store failure is
// returned as *series.SchemaError.
func (m *Manager) Ensure(ctx context.Context, seriesID string, fields []string) error {
	if err := series.ValidSeriesID(seriesID); err != nil {
		return &series.SchemaError{Series: seriesID, Op: "validate", Err: err}
	}
	for _, f := range fields {
		if err := series.ValidFieldName(f); err != nil {
			return &series.SchemaError{Series: seriesID, Op: "validate", Err: err}
		}
	}
	if m.covered(seriesID, fields) {
		return nil
	}

	exists, err := m.cat.TableExists(ctx, seriesID)
	if err != nil {
		return &series.SchemaError{Series: seriesID, Op: "inspect", Err: err}
	}
	if !exists {
		if err := m.cat.CreateTable(ctx, seriesID, dedupe(fields)); err != nil {
			return &series.SchemaError{Series: seriesID, Op: "create", Err: err}
		}
		m.log.Info("table created", zap.String("series", seriesID), zap.Strings("columns", fields))
	}

	cols, err := m.cat.Columns(ctx, seriesID)
	if err != nil {
		return &series.SchemaError{Series: seriesID, Op: "inspect", Err: err}
	}
	have := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c)] = struct{}{}
	}
	for _, f := range dedupe(fields) {
		if _, ok := have[strings.ToLower(f)]; ok {
			continue
		}
		if err := m.cat.AddColumn(ctx, seriesID, f); err != nil {
			return &series.SchemaError{Series: seriesID, Op: "alter", Err: err}
		}
		have[strings.ToLower(f)] = struct{}{}
		m.log.Info("column added", zap.String("series", seriesID), zap.String("column", f))
	}

	m.mu.Lock()
	m.known[strings.ToLower(seriesID)] = have
	m.mu.Unlock()
	return nil
}

// Forget drops the cached column set of seriesID so the next Ensure
// re-reads the catalog.
func (m *Manager) Forget(seriesID string) {
	m.mu.Lock()
	delete(m.known, strings.ToLower(seriesID))
	m.mu.Unlock()
}

func (m *Manager) covered(seriesID string, fields []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	have, ok := m.known[strings.ToLower(seriesID)]
	if !ok {
		return false
	}
	for _, f := range fields {
		if _, ok := have[strings.ToLower(f)]; !ok {
			return false
		}
	}
	return true
}

func dedupe(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		k := strings.ToLower(f)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}
