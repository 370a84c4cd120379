package series

import (
	"fmt"
	"strings"
)

const maxIdentLen = 63

// DateColumn is the primary key column of every series table.
const DateColumn = "date"

var reserved = map[string]bool{
	"sync_events": true,
}

// ValidIdentifier restricts table and column names to [A-Za-z0-9_], since
// they are embedded in statements and cannot be parameter bound.
func ValidIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > maxIdentLen {
		return fmt.Errorf("identifier %q longer than %d", name, maxIdentLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return fmt.Errorf("identifier %q has invalid character %q", name, c)
		}
	}
	return nil
}

// ValidSeriesID also rejects names used by internal tables.
func ValidSeriesID(id string) error {
	if err := ValidIdentifier(id); err != nil {
		return err
	}
	lower := strings.ToLower(id)
	if reserved[lower] || strings.HasPrefix(lower, "sqlite_") {
		return fmt.Errorf("series id %q is reserved", id)
	}
	return nil
}

func ValidFieldName(name string) error {
	if err := ValidIdentifier(name); err != nil {
		return err
	}
	if strings.EqualFold(name, DateColumn) {
		return fmt.Errorf("field name %q is reserved", name)
	}
	return nil
}
