// Package obslog wraps the standard library's log.Logger with the
// correlation fields this service's requests are keyed by (intentId, runId,
// receiptId), built on a plain *log.Logger field rather than a structured
// logging library.
package obslog

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
)

// Logger writes key=value lines to an underlying *log.Logger. It is safe
// for concurrent use, inheriting log.Logger's own internal locking.
type Logger struct {
	base *log.Logger
}

// New wraps w with the service's standard prefix and flags.
func New(w io.Writer) *Logger {
	return &Logger{base: log.New(w, "", log.LstdFlags|log.LUTC)}
}

// Fields is a set of correlation key=value pairs attached to one log line.
// Never put raw inputs.data or secret material in here - only identifiers
// and short enumerated status values.
type Fields map[string]string

// Info logs msg with fields appended in sorted key order, so log lines are
// diffable across runs the same way canonical JSON is.
func (l *Logger) Info(msg string, fields Fields) {
	l.base.Print(render(msg, fields))
}

// Error logs msg the same way Info does; this service never logs Go stack
// traces in production output, only the sanitized error string a caller
// already produced (see jobs.sanitizeFailure).
func (l *Logger) Error(msg string, fields Fields) {
	l.base.Print(render(msg, fields))
}

func render(msg string, fields Fields) string {
	if len(fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, fields[k])
	}
	return b.String()
}
