package upsert

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/schema"
	"market-sync/internal/series"
	"market-sync/internal/store"
)

type fixture struct {
	st     *store.Store
	schema *schema.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{Driver: store.DriverSqlite, Path: filepath.Join(t.TempDir(), "upsert.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return fixture{st: st, schema: schema.NewManager(st, nil)}
}

func (f fixture) apply(t *testing.T, e *Engine, row series.Row) series.Outcome {
	t.Helper()
	require.NoError(t, f.schema.Ensure(context.Background(), row.Series, row.FieldNames()))
	out, err := e.Apply(context.Background(), row)
	require.NoError(t, err)
	return out
}

func (f fixture) stored(t *testing.T, id string, d series.Date) map[string]float64 {
	t.Helper()
	row, ok, err := f.st.GetRow(context.Background(), id, d)
	require.NoError(t, err)
	require.True(t, ok)
	return row.Fields
}

var day = series.NewDate(2020, 1, 10)

func TestApply_Idempotent(t *testing.T) {
	for _, p := range []Policy{SkipUnchanged, SkipFilled} {
		t.Run(string(p), func(t *testing.T) {
			f := newFixture(t)
			e := NewEngine(f.st, p)
			row := series.Row{Series: "2330", Date: day, Fields: map[string]float64{"open": 12.5, "close": 12}}

			assert.Equal(t, series.Inserted, f.apply(t, e, row))
			for i := 0; i < 3; i++ {
				assert.Equal(t, series.Skipped, f.apply(t, e, row))
			}
			assert.Equal(t, row.Fields, f.stored(t, "2330", day))
		})
	}
}

func TestApply_PartialExtensionKeepsFields(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.st, SkipUnchanged)

	assert.Equal(t, series.Inserted, f.apply(t, e, series.Row{Series: "2330", Date: day, Fields: map[string]float64{"open": 10, "close": 11}}))
	assert.Equal(t, series.Updated, f.apply(t, e, series.Row{Series: "2330", Date: day, Fields: map[string]float64{"f_trade": 5000}}))

	assert.Equal(t, map[string]float64{"open": 10, "close": 11, "f_trade": 5000}, f.stored(t, "2330", day))
}

func TestApply_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.st, SkipUnchanged)

	assert.Equal(t, series.Inserted, f.apply(t, e, series.Row{Series: "DXY", Date: day, Fields: map[string]float64{"close": 10}}))
	assert.Equal(t, series.Updated, f.apply(t, e, series.Row{Series: "DXY", Date: day, Fields: map[string]float64{"close": 12}}))
	assert.Equal(t, 12.0, f.stored(t, "DXY", day)["close"])
}

func TestApply_FilledPolicySkipsDifferingValues(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.st, SkipFilled)

	f.apply(t, e, series.Row{Series: "DXY", Date: day, Fields: map[string]float64{"close": 10}})
	assert.Equal(t, series.Skipped, f.apply(t, e, series.Row{Series: "DXY", Date: day, Fields: map[string]float64{"close": 12}}))
	// a null supplied field still forces the update, overwriting all supplied fields
	assert.Equal(t, series.Updated, f.apply(t, e, series.Row{Series: "DXY", Date: day, Fields: map[string]float64{"close": 12, "open": 9}}))
	assert.Equal(t, map[string]float64{"close": 12, "open": 9}, f.stored(t, "DXY", day))
}

func TestApply_BadFieldIsolation(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.st, SkipUnchanged)

	row, dropped, err := series.Build(series.RawRow{
		Series: "2330",
		Date:   "2020-01-10",
		Fields: map[string]string{"open": "12.5", "high": "N/A", "low": "11.0", "close": "12.0"},
	})
	require.NoError(t, err)
	require.Len(t, dropped, 1)

	// high exists as a column from an earlier complete row on another date
	f.apply(t, e, series.Row{Series: "2330", Date: day.Add(-1), Fields: map[string]float64{"open": 1, "high": 2, "low": 1, "close": 2}})
	assert.Equal(t, series.Inserted, f.apply(t, e, row))

	got := f.stored(t, "2330", day)
	assert.Equal(t, map[string]float64{"open": 12.5, "low": 11, "close": 12}, got)
	_, hasHigh := got["high"]
	assert.False(t, hasHigh)
}

type failingRows struct{ RowStore }

func (failingRows) Lookup(context.Context, string, series.Date, []string) (bool, map[string]float64, error) {
	return false, nil, nil
}

func (failingRows) InsertRow(context.Context, string, series.Date, map[string]float64) error {
	return errors.New("connection reset")
}

func TestApply_StorageError(t *testing.T) {
	e := NewEngine(failingRows{}, "")
	out, err := e.Apply(context.Background(), series.Row{Series: "DXY", Date: day, Fields: map[string]float64{"close": 1}})
	assert.Equal(t, series.Failed, out)

	var se *series.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert", se.Op)
	assert.Equal(t, day, se.Date)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipUnchanged, p)
	p, err = ParsePolicy("filled")
	require.NoError(t, err)
	assert.Equal(t, SkipFilled, p)
	_, err = ParsePolicy("always")
	assert.Error(t, err)
}
