package store

import (
	"fmt"
	"strings"

	"market-sync/internal/series"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	name        string
	numericType string
	dateType    string
	serialPK    string
	// foldCase is true when the engine compares identifiers case-insensitively.
	foldCase        bool
	addIfNotExists  bool
	tableExistsSQL  string
	listColumnsSQL  string
	placeholderFunc func(n int) string
}

var sqliteDialect = dialect{
	name:            DriverSqlite,
	numericType:     "REAL",
	dateType:        "TEXT",
	serialPK:        "INTEGER PRIMARY KEY AUTOINCREMENT",
	foldCase:        true,
	tableExistsSQL:  `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`,
	listColumnsSQL:  `SELECT name FROM pragma_table_info(?) ORDER BY cid`,
	placeholderFunc: func(int) string { return "?" },
}

var postgresDialect = dialect{
	name:           DriverPostgres,
	numericType:    "DOUBLE PRECISION",
	dateType:       "DATE",
	serialPK:       "BIGSERIAL PRIMARY KEY",
	addIfNotExists: true,
	tableExistsSQL: `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1`,
	listColumnsSQL: `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
	placeholderFunc: func(n int) string { return fmt.Sprintf("$%d", n) },
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSqlite, "":
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported store driver %q", driver)
}

// ph returns the n-th (1-based) bind placeholder.
func (d dialect) ph(n int) string { return d.placeholderFunc(n) }

// quoteIdent validates name against the identifier allow-list before
// quoting it; nothing else is ever spliced into a statement.
func quoteIdent(name string) (string, error) {
	if err := series.ValidIdentifier(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

func quoteAll(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		q, err := quoteIdent(n)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (d dialect) createTableSQL(table string, columns []string) (string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	cols, err := quoteAll(columns)
	if err != nil {
		return "", err
	}
	defs := []string{fmt.Sprintf(`"%s" %s PRIMARY KEY`, series.DateColumn, d.dateType)}
	for _, c := range cols {
		defs = append(defs, c+" "+d.numericType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t, strings.Join(defs, ", ")), nil
}

func (d dialect) addColumnSQL(table, column string) (string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	c, err := quoteIdent(column)
	if err != nil {
		return "", err
	}
	ine := ""
	if d.addIfNotExists {
		ine = "IF NOT EXISTS "
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s%s %s", t, ine, c, d.numericType), nil
}

func (d dialect) lookupSQL(table string, columns []string) (string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	cols, err := quoteAll(columns)
	if err != nil {
		return "", err
	}
	exprs := append([]string{"1"}, cols...)
	return fmt.Sprintf(`SELECT %s FROM %s WHERE "%s" = %s`, strings.Join(exprs, ", "), t, series.DateColumn, d.ph(1)), nil
}

func (d dialect) insertSQL(table string, columns []string) (string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	cols, err := quoteAll(columns)
	if err != nil {
		return "", err
	}
	names := append([]string{`"` + series.DateColumn + `"`}, cols...)
	marks := make([]string, len(names))
	for i := range names {
		marks[i] = d.ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(names, ", "), strings.Join(marks, ", ")), nil
}

func (d dialect) updateSQL(table string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("update %s: no columns", table)
	}
	t, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	cols, err := quoteAll(columns)
	if err != nil {
		return "", err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", c, d.ph(i+1))
	}
	return fmt.Sprintf(`UPDATE %s SET %s WHERE "%s" = %s`, t, strings.Join(sets, ", "), series.DateColumn, d.ph(len(cols)+1)), nil
}

func (d dialect) eventsDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sync_events (
			id %s,
			pass_id TEXT,
			ts BIGINT NOT NULL,
			series TEXT,
			date TEXT,
			outcome TEXT,
			kind TEXT,
			reason TEXT,
			created_at TEXT
		)`, d.serialPK),
		`CREATE INDEX IF NOT EXISTS idx_sync_events_ts ON sync_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_events_series ON sync_events(series)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_events_pass ON sync_events(pass_id)`,
	}
}
