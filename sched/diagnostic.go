package sched

// DiagnosticSink receives human-readable progress and performance lines.
// Content is advisory: nothing in this package depends on what a sink does
// with a line, or whether it keeps up. *log.Logger and the display
// package's logger adapter both satisfy this trivially.
type DiagnosticSink interface {
	Printf(format string, args ...interface{})
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.diagnostic == nil {
		return
	}
	s.diagnostic.Printf(format, args...)
}
