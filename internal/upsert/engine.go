package upsert

import (
	"context"
	"fmt"

	"market-sync/internal/series"
)

// RowStore is the part of the store the engine mutates through.
type RowStore interface {
	Lookup(ctx context.Context, table string, date series.Date, columns []string) (bool, map[string]float64, error)
	InsertRow(ctx context.Context, table string, date series.Date, fields map[string]float64) error
	UpdateRow(ctx context.Context, table string, date series.Date, fields map[string]float64) error
}

// Policy decides when an existing row is left alone.
type Policy string

const (
	// SkipUnchanged skips when every supplied field is stored non-null with
	// the same value.
	SkipUnchanged Policy = "unchanged"
	// SkipFilled skips when every supplied field is stored non-null,
	// whatever its value.
	SkipFilled Policy = "filled"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", SkipUnchanged:
		return SkipUnchanged, nil
	case SkipFilled:
		return SkipFilled, nil
	}
	return "", fmt.Errorf("unknown upsert policy %q", s)
}

type Engine struct {
	rows   RowStore
	policy Policy
}

func NewEngine(rows RowStore, policy Policy) *Engine {
	if policy == "" {
		policy = SkipUnchanged
	}
	return &Engine{rows: rows, policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// Apply writes row into its series table. A missing date is inserted with
// only the supplied fields; an existing date gets exactly the supplied
// fields overwritten unless the policy says they are already in place.
// Store failures come back as *series.StorageError.
func (e *Engine) Apply(ctx context.Context, row series.Row) (series.Outcome, error) {
	if len(row.Fields) == 0 {
		return series.Failed, &series.ValidationError{Series: row.Series, Date: row.Date.String(), Reason: "row has no fields"}
	}
	names := row.FieldNames()

	found, stored, err := e.rows.Lookup(ctx, row.Series, row.Date, names)
	if err != nil {
		return series.Failed, &series.StorageError{Series: row.Series, Date: row.Date, Op: "lookup", Err: err}
	}
	if !found {
		if err := e.rows.InsertRow(ctx, row.Series, row.Date, row.Fields); err != nil {
			return series.Failed, &series.StorageError{Series: row.Series, Date: row.Date, Op: "insert", Err: err}
		}
		return series.Inserted, nil
	}
	if e.inPlace(row.Fields, stored) {
		return series.Skipped, nil
	}
	if err := e.rows.UpdateRow(ctx, row.Series, row.Date, row.Fields); err != nil {
		return series.Failed, &series.StorageError{Series: row.Series, Date: row.Date, Op: "update", Err: err}
	}
	return series.Updated, nil
}

func (e *Engine) inPlace(fields, stored map[string]float64) bool {
	for name, v := range fields {
		have, ok := stored[name]
		if !ok {
			return false
		}
		if e.policy == SkipUnchanged && have != v {
			return false
		}
	}
	return true
}
