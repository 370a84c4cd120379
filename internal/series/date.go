package series

import (
	"fmt"
	"time"
)

// DateFormat is the storage representation of a trading date.
const DateFormat = "2006-01-02"

// Date is a calendar day with no time-of-day or zone.
type Date struct {
	y int
	m time.Month
	d int
}

func NewDate(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// ParseDate parses s with a Go time layout, e.g. "20060102" or "02-Jan-06".
func ParseDate(layout, s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want layout %q: %w", s, layout, err)
	}
	return NewDate(t.Date()), nil
}

func Today() Date { return NewDate(time.Now().Date()) }

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Add returns d shifted by i calendar days.
func (d Date) Add(i int) Date { return NewDate(d.y, d.m, d.d+i) }

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

func (d Date) Year() int { return d.y }

func (d Date) Month() time.Month { return d.m }

func (d Date) Day() int { return d.d }

func (d Date) Format(layout string) string { return d.time().Format(layout) }

// String is empty for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.time().Format(DateFormat)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(DateFormat, string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
