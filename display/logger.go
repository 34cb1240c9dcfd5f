package display

import (
	"fmt"

	sglog "github.com/sourcegraph/log"
)

// Logger adapts a sourcegraph/log scoped logger to the scheduler's
// DiagnosticSink interface (a plain Printf method), so diagnostic lines
// land as structured log entries rather than a bare text stream.
type Logger struct {
	base sglog.Logger
}

// NewLogger wraps base, typically obtained via sglog.Scoped("sched", "").
func NewLogger(base sglog.Logger) *Logger {
	return &Logger{base: base}
}

// Printf formats args per format and emits the result as an informational
// structured log entry.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.base.Info(fmt.Sprintf(format, args...))
}
