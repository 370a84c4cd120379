package schema

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/series"
	"market-sync/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Driver: store.DriverSqlite, Path: filepath.Join(t.TempDir(), "schema.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsure_CreatesThenExtends(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, nil)

	require.NoError(t, m.Ensure(ctx, "2330", []string{"traded_share", "open", "high", "low", "close"}))
	require.NoError(t, m.Ensure(ctx, "2330", []string{"f_trade", "l_trade"}))

	cols, err := st.Columns(ctx, "2330")
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "traded_share", "open", "high", "low", "close", "f_trade", "l_trade"}, cols)
}

func TestEnsure_Monotonic(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, nil)

	sets := [][]string{{"close"}, {"open", "close"}, {"m1"}, {"close"}, {}}
	union := map[string]bool{"date": true}
	for _, fields := range sets {
		require.NoError(t, m.Ensure(ctx, "DXY", fields))
		for _, f := range fields {
			union[f] = true
		}
		cols, err := st.Columns(ctx, "DXY")
		require.NoError(t, err)
		got := map[string]bool{}
		for _, c := range cols {
			got[c] = true
		}
		assert.Equal(t, union, got)
	}
}

func TestEnsure_IdempotentAcrossManagers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, NewManager(st, nil).Ensure(ctx, "USTY", []string{"m1", "y10"}))
	// a fresh manager has no cache and must still be a no-op
	require.NoError(t, NewManager(st, nil).Ensure(ctx, "USTY", []string{"m1", "y10", "m1"}))

	cols, err := st.Columns(ctx, "USTY")
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "m1", "y10"}, cols)
}

type brokenCatalog struct {
	*store.Store
	failOn string
}

func (b brokenCatalog) AddColumn(ctx context.Context, table, column string) error {
	if table == b.failOn {
		return errors.New("disk full")
	}
	return b.Store.AddColumn(ctx, table, column)
}

func TestEnsure_FailureIsSchemaError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(brokenCatalog{Store: st, failOn: "2330"}, nil)

	require.NoError(t, m.Ensure(ctx, "2330", []string{"close"}))
	err := m.Ensure(ctx, "2330", []string{"f_trade"})
	var se *series.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "alter", se.Op)
	assert.Equal(t, series.KindSchema, series.Classify(err))

	// other series are untouched
	require.NoError(t, m.Ensure(ctx, "2317", []string{"close", "f_trade"}))
}

func TestEnsure_RejectsUnsafeNames(t *testing.T) {
	m := NewManager(newTestStore(t), nil)
	var se *series.SchemaError
	assert.ErrorAs(t, m.Ensure(context.Background(), "x;drop", []string{"close"}), &se)
	assert.ErrorAs(t, m.Ensure(context.Background(), "DXY", []string{"date"}), &se)
}

type countingCatalog struct {
	*store.Store
	inspects int
}

func (c *countingCatalog) Columns(ctx context.Context, table string) ([]string, error) {
	c.inspects++
	return c.Store.Columns(ctx, table)
}

func TestEnsure_ForgetRereadsCatalog(t *testing.T) {
	ctx := context.Background()
	cat := &countingCatalog{Store: newTestStore(t)}
	m := NewManager(cat, nil)

	require.NoError(t, m.Ensure(ctx, "USTY", []string{"m1", "y10"}))
	require.NoError(t, m.Ensure(ctx, "USTY", []string{"y10"}))
	assert.Equal(t, 1, cat.inspects)

	m.Forget("usty")
	require.NoError(t, m.Ensure(ctx, "USTY", []string{"y10"}))
	assert.Equal(t, 2, cat.inspects)
}
