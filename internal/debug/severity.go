package debug

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Severity tags a log line emitted through Output, matching the severities
// the core's external Logger collaborator is required to accept.
type Severity int

const (
	SeverityErr Severity = iota
	SeverityWarn
	SeverityInfo
	SeverityDebug
	SeverityTest
	SeverityDump
)

func (s Severity) String() string {
	switch s {
	case SeverityErr:
		return "ERR"
	case SeverityWarn:
		return "WARN"
	case SeverityInfo:
		return "INFO"
	case SeverityDebug:
		return "DEBUG"
	case SeverityTest:
		return "TEST"
	case SeverityDump:
		return "DUMP"
	default:
		return "UNKNOWN"
	}
}

// Sink is the external logger collaborator: a single reentrant method
// callable from any goroutine. maxLen truncates message, 0 meaning
// unbounded. Implementations must not panic.
type Sink interface {
	OutputLog(severity Severity, maxLen int, message string)
}

// stderrSink is the process default Sink, used when no Sink has been
// installed via SetSink.
type stderrSink struct{}

func (stderrSink) OutputLog(severity Severity, maxLen int, message string) {
	if maxLen > 0 && len(message) > maxLen {
		message = message[:maxLen]
	}
	_, _ = fmt.Fprintf(os.Stderr, "[%s] %s\n", severity, message)
}

var (
	sink      atomic.Pointer[Sink]
	errCount  atomic.Uint64
	warnCount atomic.Uint64
)

func init() {
	var s Sink = stderrSink{}
	sink.Store(&s)
}

// SetSink installs the process-wide log sink. Passing nil restores the
// default stderr sink. The core never makes routing decisions beyond this
// single seam.
func SetSink(s Sink) {
	if s == nil {
		s = stderrSink{}
	}
	sink.Store(&s)
}

// Output routes a formatted message to the installed Sink, and bumps the
// ERR/WARN counters for severities that warrant it.
//
// SeverityTest is special-cased: if the calling goroutine is inside a
// WithTesting scope, the message goes to testing.TB.Log instead of the
// installed Sink, so assertions made from background goroutines surface in
// the right test's output.
func Output(severity Severity, maxLen int, format string, args ...any) {
	switch severity {
	case SeverityErr:
		errCount.Add(1)
	case SeverityWarn:
		warnCount.Add(1)
	}

	message := fmt.Sprintf(format, args...)
	if maxLen > 0 && len(message) > maxLen {
		message = message[:maxLen]
	}

	if severity == SeverityTest {
		if t := tls.Get(); t != nil {
			t.Log(message)
			return
		}
	}

	s := *sink.Load()
	s.OutputLog(severity, maxLen, message)
}

// Counts returns the lifetime ERR and WARN counts observed by Output.
func Counts() (countErr, countWarn uint64) {
	return errCount.Load(), warnCount.Load()
}

// ResetCounts atomically zeroes the ERR/WARN counters, returning their
// values immediately prior to the reset.
func ResetCounts() (countErr, countWarn uint64) {
	return errCount.Swap(0), warnCount.Swap(0)
}
