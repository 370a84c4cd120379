package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"market-sync/internal/series"
	"market-sync/internal/syncer"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitPassFailed   = 1
	ExitCommandError = 2
	ExitStoreDown    = 3
)

// ExitError carries a process exit code up to main.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitCommandError
}

// setupError classifies a failure while building the app. A store that
// cannot be reached at startup is reported like one lost mid-pass.
func setupError(err error) error {
	if errors.Is(err, series.ErrStoreUnreachable) {
		return WrapExitError(ExitStoreDown, "store unreachable", err)
	}
	return WrapExitError(ExitCommandError, "setup", err)
}

// passError classifies a fatal pass failure.
func passError(err error) error {
	if errors.Is(err, series.ErrStoreUnreachable) {
		return WrapExitError(ExitStoreDown, "store unreachable", err)
	}
	return WrapExitError(ExitPassFailed, "sync pass failed", err)
}

func writeReport(w io.Writer, format string, rep *syncer.Report) error {
	if rep == nil {
		return nil
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "pass %s\n", rep.PassID)
	if n := len(rep.Dates); n > 0 {
		fmt.Fprintf(w, "dates %s .. %s (%d)\n", rep.Dates[n-1], rep.Dates[0], n)
	}
	ids := make([]string, 0, len(rep.Counts))
	for id := range rep.Counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIES\tINSERTED\tUPDATED\tSKIPPED\tFAILED")
	for _, id := range ids {
		c := rep.Counts[id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", id, c.Inserted, c.Updated, c.Skipped, c.Failed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for id, reason := range rep.SchemaFailed {
		fmt.Fprintf(w, "schema failed %s: %s\n", id, reason)
	}
	for name, n := range rep.Rejected {
		fmt.Fprintf(w, "rejected %d malformed row(s) from %s\n", n, name)
	}
	if len(rep.Unavailable) > 0 {
		fmt.Fprintf(w, "unavailable %d document(s)\n", len(rep.Unavailable))
	}
	if rep.Err != "" {
		fmt.Fprintf(w, "error: %s\n", rep.Err)
	}
	return nil
}
