package series

// Outcome is what happened to one row (or one document) during a pass.
type Outcome string

const (
	Inserted     Outcome = "inserted"
	Updated      Outcome = "updated"
	Skipped      Outcome = "skipped"
	Failed       Outcome = "failed"
	Dropped      Outcome = "dropped"
	Unavailable  Outcome = "unavailable"
	SchemaFailed Outcome = "schema_failed"
)

// Event is the unit sent to observability sinks for every processed row.
type Event struct {
	PassID  string  `json:"pass_id,omitempty"`
	Series  string  `json:"series"`
	Date    string  `json:"date,omitempty"`
	Outcome Outcome `json:"outcome"`
	Kind    Kind    `json:"kind,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	TS      int64   `json:"ts"`
}

// Counts accumulates row outcomes for one series.
type Counts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (c *Counts) Add(o Outcome) {
	switch o {
	case Inserted:
		c.Inserted++
	case Updated:
		c.Updated++
	case Skipped:
		c.Skipped++
	case Failed, Dropped:
		c.Failed++
	}
}

func (c Counts) Total() int { return c.Inserted + c.Updated + c.Skipped + c.Failed }
