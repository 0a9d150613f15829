package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"optiledger/internal/core/apperror"
)

// Exit codes for CLI commands.
const (
	ExitSuccess    = 0
	ExitFailure    = 1 // store or repair failure
	ExitUsage      = 2 // bad flags or arguments
	ExitLockHeld   = 3 // another repair holds the counter
	ExitValidation = 4 // request rejected by the service
)

// ExitCode maps a command error onto a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case apperror.HasCode(err, apperror.CodeRepairInProgress):
		return ExitLockHeld
	case apperror.HasCode(err, apperror.CodeValidation):
		return ExitValidation
	case errors.As(err, new(*usageError)):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// usageError marks invalid flag values.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// textWriter aligns label/value rows.
type textWriter struct {
	tw *tabwriter.Writer
}

func newTextWriter(w io.Writer) *textWriter {
	return &textWriter{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (t *textWriter) row(label string, value any) {
	fmt.Fprintf(t.tw, "%s:\t%v\n", label, value)
}

// cells writes one tab-separated table row.
func (t *textWriter) cells(values ...any) {
	for i, v := range values {
		if i > 0 {
			fmt.Fprint(t.tw, "\t")
		}
		fmt.Fprint(t.tw, v)
	}
	fmt.Fprintln(t.tw)
}

func (t *textWriter) flush() error {
	return t.tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
