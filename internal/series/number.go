package series

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var placeholders = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"---":  true,
	"n/a":  true,
	"na":   true,
	"null": true,
	"x":    true,
}

// ParseNumber coerces a scraped cell like "1,234,567", "+12.5" or " 3.01 "
// into a float64. Placeholders such as "-" or "N/A" are rejected so that
// they end up absent rather than zero.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if placeholders[strings.ToLower(s)] {
		return 0, fmt.Errorf("placeholder %q", s)
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %w", err)
	}
	v := d.InexactFloat64()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("out of range %q", s)
	}
	return v, nil
}
