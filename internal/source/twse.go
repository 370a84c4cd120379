package source

import (
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"market-sync/internal/series"
)

// Column maps a cell index of a source row to a field name.
type Column struct {
	Field string
	Index int
}

// TWSETable parses the row arrays of a TWSE JSON report. Each row becomes
// one raw row of the series named by its first cell.
type TWSETable struct {
	// Paths are tried in order; the first one resolving to rows wide enough
	// for Columns wins.
	Paths   []string
	Columns []Column
	// RequireOK treats a stat other than "OK" as no document.
	RequireOK bool
}

// PriceTable reads the daily close quotes of MI_INDEX.
func PriceTable() *TWSETable {
	return &TWSETable{
		Paths: []string{"$.data5", "$.data9", "$.tables[*].data"},
		Columns: []Column{
			{Field: "traded_share", Index: 2},
			{Field: "open", Index: 5},
			{Field: "high", Index: 6},
			{Field: "low", Index: 7},
			{Field: "close", Index: 8},
		},
	}
}

// FlowTable reads the institutional investor net buy/sell of T86.
func FlowTable() *TWSETable {
	return &TWSETable{
		Paths: []string{"$.data"},
		Columns: []Column{
			{Field: "f_trade", Index: 4},
			{Field: "l_trade", Index: 7},
		},
		RequireOK: true,
	}
}

func (t *TWSETable) width() int {
	w := 1
	for _, c := range t.Columns {
		if c.Index+1 > w {
			w = c.Index + 1
		}
	}
	return w
}

func (t *TWSETable) Parse(doc Document) iter.Seq2[series.RawRow, error] {
	var jobj any
	if err := json.Unmarshal(doc.Body, &jobj); err != nil {
		return single(fmt.Errorf("%s: decode: %w", doc.Source, err))
	}

	if t.RequireOK {
		stat, _ := jsonpath.Get("$.stat", jobj)
		if s, _ := stat.(string); !strings.EqualFold(s, "OK") {
			return single(fmt.Errorf("%s: stat %v: %w", doc.Source, stat, series.ErrSourceUnavailable))
		}
	}

	date := doc.Date
	if date.IsZero() {
		if v, err := jsonpath.Get("$.date", jobj); err == nil {
			if s, ok := v.(string); ok {
				date, _ = series.ParseDate(CompactDate, s)
			}
		}
	}
	if date.IsZero() {
		return single(fmt.Errorf("%s: no trading date", doc.Source))
	}

	rows := t.findRows(jobj)
	if len(rows) == 0 {
		return single(fmt.Errorf("%s: no rows for %s: %w", doc.Source, date, series.ErrSourceUnavailable))
	}

	return func(yield func(series.RawRow, error) bool) {
		for i, r := range rows {
			cells, ok := r.([]any)
			if !ok || len(cells) < t.width() {
				if !yield(series.RawRow{}, &series.ValidationError{Date: date.String(), Reason: fmt.Sprintf("%s row %d: malformed", doc.Source, i)}) {
					return
				}
				continue
			}
			raw := series.RawRow{
				Series: strings.TrimSpace(cellText(cells[0])),
				Date:   date.String(),
				Fields: make(map[string]string, len(t.Columns)),
			}
			for _, c := range t.Columns {
				raw.Fields[c.Field] = cellText(cells[c.Index])
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

func (t *TWSETable) findRows(jobj any) []any {
	for _, path := range t.Paths {
		v, err := jsonpath.Get(path, jobj)
		if err != nil {
			continue
		}
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		// a wildcard path yields a list of tables
		if strings.Contains(path, "[*]") {
			for _, tbl := range list {
				if rows, ok := tbl.([]any); ok && t.wideEnough(rows) {
					return rows
				}
			}
			continue
		}
		if t.wideEnough(list) {
			return list
		}
	}
	return nil
}

func (t *TWSETable) wideEnough(rows []any) bool {
	if len(rows) == 0 {
		return false
	}
	first, ok := rows[0].([]any)
	return ok && len(first) >= t.width()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
