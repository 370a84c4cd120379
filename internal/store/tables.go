package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-sync/internal/series"
)

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	if err := series.ValidIdentifier(table); err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.tableExistsSQL, table).Scan(&n); err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// CreateTable creates table with a date primary key and one nullable
// numeric column per name.
func (s *Store) CreateTable(ctx context.Context, table string, columns []string) error {
	stmt, err := s.dialect.createTableSQL(table, columns)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// Columns lists the table's columns, date included, in definition order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	if err := series.ValidIdentifier(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.listColumnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("list columns %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column %s: %w", table, err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows columns %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if s.sameIdent(c, column) {
			return true, nil
		}
	}
	return false, nil
}

// AddColumn adds a nullable numeric column. Losing a race against another
// writer adding the same column is not an error.
func (s *Store) AddColumn(ctx context.Context, table, column string) error {
	stmt, err := s.dialect.addColumnSQL(table, column)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ok, cerr := s.ColumnExists(ctx, table, column); cerr == nil && ok {
			return nil
		}
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *Store) RowExists(ctx context.Context, table string, date series.Date) (bool, error) {
	found, _, err := s.Lookup(ctx, table, date, nil)
	return found, err
}

// Lookup reports whether a row exists for date and returns the non-null
// values it holds among columns. Null columns are absent from the map.
func (s *Store) Lookup(ctx context.Context, table string, date series.Date, columns []string) (bool, map[string]float64, error) {
	stmt, err := s.dialect.lookupSQL(table, columns)
	if err != nil {
		return false, nil, err
	}
	var one int64
	values := make([]sql.NullFloat64, len(columns))
	dest := []any{&one}
	for i := range values {
		dest = append(dest, &values[i])
	}
	err = s.db.QueryRowContext(ctx, stmt, date.String()).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("lookup %s@%s: %w", table, date, err)
	}
	stored := make(map[string]float64, len(columns))
	for i, c := range columns {
		if values[i].Valid {
			stored[c] = values[i].Float64
		}
	}
	return true, stored, nil
}

func (s *Store) InsertRow(ctx context.Context, table string, date series.Date, fields map[string]float64) error {
	cols, args := splitFields(fields)
	stmt, err := s.dialect.insertSQL(table, cols)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, append([]any{date.String()}, args...)...); err != nil {
		return fmt.Errorf("insert %s@%s: %w", table, date, err)
	}
	return nil
}

// UpdateRow sets exactly the given columns for date; other columns keep
// their stored values.
func (s *Store) UpdateRow(ctx context.Context, table string, date series.Date, fields map[string]float64) error {
	cols, args := splitFields(fields)
	stmt, err := s.dialect.updateSQL(table, cols)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, stmt, append(args, date.String())...)
	if err != nil {
		return fmt.Errorf("update %s@%s: %w", table, date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s@%s rows affected: %w", table, date, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s@%s: no row", table, date)
	}
	return nil
}

// GetRow returns the stored row for date with null columns left out.
func (s *Store) GetRow(ctx context.Context, table string, date series.Date) (series.Row, bool, error) {
	rows, err := s.readRows(ctx, table, &date, 1)
	if err != nil || len(rows) == 0 {
		return series.Row{}, false, err
	}
	return rows[0], true, nil
}

// ReadRows returns up to limit rows, newest date first.
func (s *Store) ReadRows(ctx context.Context, table string, limit int) ([]series.Row, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 5000 {
		limit = 5000
	}
	return s.readRows(ctx, table, nil, limit)
}

func (s *Store) readRows(ctx context.Context, table string, on *series.Date, limit int) ([]series.Row, error) {
	all, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, c := range all {
		if !s.sameIdent(c, series.DateColumn) {
			cols = append(cols, c)
		}
	}
	t, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	quoted, err := quoteAll(cols)
	if err != nil {
		return nil, err
	}
	sel := append([]string{`"` + series.DateColumn + `"`}, quoted...)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(sel, ", "), t)
	var args []any
	if on != nil {
		query += fmt.Sprintf(` WHERE "%s" = %s`, series.DateColumn, s.dialect.ph(1))
		args = append(args, on.String())
	}
	query += fmt.Sprintf(` ORDER BY "%s" DESC LIMIT %s`, series.DateColumn, s.dialect.ph(len(args)+1))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []series.Row
	for rows.Next() {
		var rawDate any
		values := make([]sql.NullFloat64, len(cols))
		dest := []any{&rawDate}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		d, err := scanDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r := series.Row{Series: table, Date: d, Fields: make(map[string]float64)}
		for i, v := range values {
			if v.Valid {
				r.Fields[cols[i]] = v.Float64
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) sameIdent(a, b string) bool {
	if s.dialect.foldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func splitFields(fields map[string]float64) ([]string, []any) {
	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = fields[c]
	}
	return cols, args
}

func scanDate(v any) (series.Date, error) {
	switch t := v.(type) {
	case time.Time:
		return series.NewDate(t.Date()), nil
	case string:
		return parseStoredDate(t)
	case []byte:
		return parseStoredDate(string(t))
	}
	return series.Date{}, fmt.Errorf("unexpected date value %T", v)
}

func parseStoredDate(s string) (series.Date, error) {
	if len(s) > len(series.DateFormat) {
		s = s[:len(series.DateFormat)]
	}
	return series.ParseDate(series.DateFormat, s)
}
