package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"market-sync/internal/series"
)

// TreasuryDate is the BID_CURVE_DATE layout of the daily yield curve feed.
const TreasuryDate = "02-Jan-06"

var yieldTags = []struct{ tag, field string }{
	{"BC_1MONTH", "m1"},
	{"BC_3MONTH", "m3"},
	{"BC_6MONTH", "m6"},
	{"BC_1YEAR", "y1"},
	{"BC_2YEAR", "y2"},
	{"BC_3YEAR", "y3"},
	{"BC_5YEAR", "y5"},
	{"BC_7YEAR", "y7"},
	{"BC_10YEAR", "y10"},
	{"BC_20YEAR", "y20"},
	{"BC_30YEAR", "y30"},
}

type yieldEntry struct {
	Date   string      `xml:"BID_CURVE_DATE"`
	Values []yieldCell `xml:",any"`
}

type yieldCell struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// YieldCurve parses the treasury yield.xml feed: one raw row per
// G_NEW_DATE element, all into one series.
type YieldCurve struct {
	Series string
}

func (y *YieldCurve) Parse(doc Document) iter.Seq2[series.RawRow, error] {
	id := y.Series
	if id == "" {
		id = "USTY"
	}
	return func(yield func(series.RawRow, error) bool) {
		dec := xml.NewDecoder(bytes.NewReader(doc.Body))
		seen := 0
		for {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(series.RawRow{}, fmt.Errorf("%s: decode xml: %w", doc.Source, err))
				return
			}
			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Local != "G_NEW_DATE" {
				continue
			}
			var e yieldEntry
			if err := dec.DecodeElement(&e, &start); err != nil {
				yield(series.RawRow{}, fmt.Errorf("%s: decode G_NEW_DATE: %w", doc.Source, err))
				return
			}
			seen++
			if !yield(e.raw(id), nil) {
				return
			}
		}
		if seen == 0 {
			yield(series.RawRow{}, fmt.Errorf("%s: no G_NEW_DATE entries: %w", doc.Source, series.ErrSourceUnavailable))
		}
	}
}

func (e yieldEntry) raw(id string) series.RawRow {
	cells := make(map[string]string, len(e.Values))
	for _, c := range e.Values {
		cells[c.XMLName.Local] = strings.TrimSpace(c.Text)
	}
	raw := series.RawRow{
		Series:     id,
		Date:       strings.TrimSpace(e.Date),
		DateLayout: TreasuryDate,
		Fields:     make(map[string]string, len(yieldTags)),
	}
	for _, t := range yieldTags {
		raw.Fields[t.field] = cells[t.tag]
	}
	return raw
}
