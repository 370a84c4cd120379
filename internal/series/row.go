package series

import (
	"fmt"
	"sort"
)

// Row is one normalized observation of one series on one date. Fields may
// be a subset of the series' columns.
type Row struct {
	Series string             `json:"series"`
	Date   Date               `json:"date"`
	Fields map[string]float64 `json:"fields"`
}

// FieldNames returns the row's field names in a stable order.
func (r Row) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RawRow is what a parser extracts before coercion: every value is still text.
type RawRow struct {
	Series     string
	Date       string
	DateLayout string
	Fields     map[string]string
}

// Build validates raw into a Row. A bad series id, a bad date or a row with
// no usable field fails the whole row; a single bad field is dropped and
// reported in the returned slice while the rest of the row survives.
func Build(raw RawRow) (Row, []*ValidationError, error) {
	if err := ValidSeriesID(raw.Series); err != nil {
		return Row{}, nil, &ValidationError{Series: raw.Series, Date: raw.Date, Reason: err.Error()}
	}
	layout := raw.DateLayout
	if layout == "" {
		layout = DateFormat
	}
	date, err := ParseDate(layout, raw.Date)
	if err != nil {
		return Row{}, nil, &ValidationError{Series: raw.Series, Date: raw.Date, Reason: err.Error()}
	}

	row := Row{Series: raw.Series, Date: date, Fields: make(map[string]float64, len(raw.Fields))}
	var dropped []*ValidationError
	for name, value := range raw.Fields {
		if err := ValidFieldName(name); err != nil {
			dropped = append(dropped, &ValidationError{Series: raw.Series, Date: date.String(), Field: name, Value: value, Reason: err.Error()})
			continue
		}
		v, err := ParseNumber(value)
		if err != nil {
			dropped = append(dropped, &ValidationError{Series: raw.Series, Date: date.String(), Field: name, Value: value, Reason: err.Error()})
			continue
		}
		row.Fields[name] = v
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Field < dropped[j].Field })

	if len(row.Fields) == 0 {
		return Row{}, dropped, &ValidationError{Series: raw.Series, Date: date.String(), Reason: fmt.Sprintf("no usable fields out of %d", len(raw.Fields))}
	}
	return row, dropped, nil
}
