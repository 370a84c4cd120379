package source

import (
	"bytes"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"market-sync/internal/series"
)

// DateCell and SkipCell are special entries of HTMLTable.Columns.
const (
	DateCell = "date"
	SkipCell = "-"
)

// HTMLTable reads a history table from a scraped page. Columns names each
// <td> by position; rows with fewer cells than Columns (headers, dividend
// notes) are ignored.
type HTMLTable struct {
	Series string
	// Class selects the first table whose class attribute contains it.
	// Empty means the first table of the page.
	Class      string
	Columns    []string
	DateLayout string
}

func (t *HTMLTable) Parse(doc Document) iter.Seq2[series.RawRow, error] {
	root, err := html.Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return single(fmt.Errorf("%s: parse html: %w", doc.Source, err))
	}
	table := findTable(root, t.Class)
	if table == nil {
		return single(fmt.Errorf("%s: no table with class %q: %w", doc.Source, t.Class, series.ErrSourceUnavailable))
	}
	layout := t.DateLayout
	if layout == "" {
		layout = "Jan 02, 2006"
	}
	dateAt := -1
	for i, c := range t.Columns {
		if c == DateCell {
			dateAt = i
		}
	}
	if dateAt < 0 {
		return single(fmt.Errorf("%s: columns have no %q entry", doc.Source, DateCell))
	}

	return func(yield func(series.RawRow, error) bool) {
		for tr := range elements(table, atom.Tr) {
			cells := cellTexts(tr)
			if len(cells) < len(t.Columns) {
				continue
			}
			raw := series.RawRow{
				Series:     t.Series,
				Date:       cells[dateAt],
				DateLayout: layout,
				Fields:     make(map[string]string, len(t.Columns)),
			}
			for i, name := range t.Columns {
				if name == DateCell || name == SkipCell {
					continue
				}
				raw.Fields[name] = cells[i]
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

func findTable(root *html.Node, class string) *html.Node {
	for n := range elements(root, atom.Table) {
		if class == "" || hasClass(n, class) {
			return n
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	want := strings.Fields(class)
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		have := make(map[string]bool)
		for _, c := range strings.Fields(a.Val) {
			have[c] = true
		}
		for _, w := range want {
			if !have[w] {
				return false
			}
		}
		return true
	}
	return false
}

// elements yields every descendant of n with the given tag, document order.
func elements(n *html.Node, tag atom.Atom) iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		var walk func(*html.Node) bool
		walk = func(n *html.Node) bool {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.DataAtom == tag {
					if !yield(c) {
						return false
					}
				}
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(n)
	}
}

func cellTexts(tr *html.Node) []string {
	var out []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			out = append(out, strings.Join(strings.Fields(textOf(c)), " "))
		}
	}
	return out
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
		b.WriteString(" ")
	}
	return b.String()
}
