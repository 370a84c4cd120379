package series

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means a source had no document for the request.
	// It is "no data today", never a failure to propagate.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrStoreUnreachable aborts a whole pass.
	ErrStoreUnreachable = errors.New("store unreachable")
)

// ValidationError reports a row or a single field that could not be coerced.
// Field is empty when the whole row is unusable.
type ValidationError struct {
	Series string
	Date   string
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid row %s@%s: %s", e.Series, e.Date, e.Reason)
	}
	return fmt.Sprintf("invalid field %s.%s@%s (%q): %s", e.Series, e.Field, e.Date, e.Value, e.Reason)
}

// SchemaError is a create/alter failure; fatal for the series' current pass.
type SchemaError struct {
	Series string
	Op     string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s %s: %v", e.Op, e.Series, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StorageError is an insert/update/lookup failure for one date.
type StorageError struct {
	Series string
	Date   Date
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s@%s: %v", e.Op, e.Series, e.Date, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Kind names an error's place in the taxonomy.
type Kind string

const (
	KindNone        Kind = ""
	KindValidation  Kind = "validation"
	KindSchema      Kind = "schema"
	KindStorage     Kind = "storage"
	KindUnavailable Kind = "source_unavailable"
	KindUnreachable Kind = "store_unreachable"
	KindOther       Kind = "other"
)

func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		ve *ValidationError
		se *SchemaError
		st *StorageError
	)
	switch {
	case errors.Is(err, ErrStoreUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrSourceUnavailable):
		return KindUnavailable
	case errors.As(err, &se):
		return KindSchema
	case errors.As(err, &st):
		return KindStorage
	case errors.As(err, &ve):
		return KindValidation
	}
	return KindOther
}
