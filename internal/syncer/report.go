package syncer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"market-sync/internal/series"
)

// Report is the user-visible result of one pass.
type Report struct {
	PassID     string                   `json:"pass_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Counts     map[string]series.Counts `json:"counts"`
	// SchemaFailed maps series to the schema error that excluded it.
	SchemaFailed map[string]string `json:"schema_failed,omitempty"`
	Dates        []string          `json:"dates,omitempty"`
	// Rejected counts per source the rows that were malformed before a
	// series could be read from them.
	Rejected map[string]int `json:"rejected,omitempty"`
	// Unavailable lists documents that had no data, as source@date.
	Unavailable []string `json:"unavailable,omitempty"`
	Err         string   `json:"error,omitempty"`
}

func NewReport(passID string) *Report {
	return &Report{
		PassID:       passID,
		StartedAt:    time.Now(),
		Counts:       make(map[string]series.Counts),
		SchemaFailed: make(map[string]string),
		Rejected:     make(map[string]int),
	}
}

func (r *Report) count(seriesID string, o series.Outcome) {
	c := r.Counts[seriesID]
	c.Add(o)
	r.Counts[seriesID] = c
}

func (r *Report) reject(sourceName string) {
	if r.Rejected == nil {
		r.Rejected = make(map[string]int)
	}
	r.Rejected[sourceName]++
}

func (r *Report) excluded(seriesID string) bool {
	_, ok := r.SchemaFailed[seriesID]
	return ok
}

// Totals sums the counts of every series. Rejected rows count as failed.
func (r *Report) Totals() series.Counts {
	var t series.Counts
	for _, n := range r.Rejected {
		t.Failed += n
	}
	for _, c := range r.Counts {
		t.Inserted += c.Inserted
		t.Updated += c.Updated
		t.Skipped += c.Skipped
		t.Failed += c.Failed
	}
	return t
}

// Markdown renders a short summary for chat notifications.
func (r *Report) Markdown() string {
	t := r.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "### market sync %s\n\n", shortID(r.PassID))
	if r.Err != "" {
		fmt.Fprintf(&b, "**failed**: %s\n\n", r.Err)
	}
	if len(r.Dates) > 0 {
		fmt.Fprintf(&b, "- dates: %s .. %s (%d)\n", r.Dates[len(r.Dates)-1], r.Dates[0], len(r.Dates))
	}
	fmt.Fprintf(&b, "- series: %d\n", len(r.Counts))
	fmt.Fprintf(&b, "- inserted %d, updated %d, skipped %d, failed %d\n", t.Inserted, t.Updated, t.Skipped, t.Failed)
	if len(r.Unavailable) > 0 {
		fmt.Fprintf(&b, "- no data: %d documents\n", len(r.Unavailable))
	}
	if len(r.SchemaFailed) > 0 {
		ids := make([]string, 0, len(r.SchemaFailed))
		for id := range r.SchemaFailed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("\n**schema failures**\n\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, r.SchemaFailed[id])
		}
	}
	fmt.Fprintf(&b, "\n%s", r.FinishedAt.Format(time.DateTime))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
