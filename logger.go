package lfconcurrent

import "github.com/danwails/lfconcurrent/internal/debug"

// Severity mirrors the external Logger collaborator's severity tags.
type Severity = debug.Severity

const (
	SeverityErr   = debug.SeverityErr
	SeverityWarn  = debug.SeverityWarn
	SeverityInfo  = debug.SeverityInfo
	SeverityDebug = debug.SeverityDebug
	SeverityTest  = debug.SeverityTest
	SeverityDump  = debug.SeverityDump
)

// Logger is the single external collaborator the core calls with a
// severity tag and a formatted string. No log routing decisions live in
// the core beyond this seam: implementations decide where ERR/WARN/INFO
// end up.
//
// Implementations must not panic, must be safe to call from any goroutine,
// and should be reentrant.
type Logger interface {
	OutputLog(severity Severity, maxLen int, message string)
}

// SetLogger installs the process-wide Logger. Passing nil restores the
// default, which writes to stderr.
func SetLogger(l Logger) {
	if l == nil {
		debug.SetSink(nil)
		return
	}
	debug.SetSink(l)
}

// LogCounts returns the lifetime ERR and WARN counts observed by the core.
func LogCounts() (countErr, countWarn uint64) {
	return debug.Counts()
}

// ResetLogCounts atomically zeroes the ERR/WARN counters, returning their
// values immediately prior to the reset.
func ResetLogCounts() (countErr, countWarn uint64) {
	return debug.ResetCounts()
}

// logf routes a formatted message through debug.Output at the given
// severity. The components in internal/ and pkg/ call debug.Output
// directly rather than this helper.
func logf(severity Severity, format string, args ...any) {
	debug.Output(severity, 0, format, args...)
}
