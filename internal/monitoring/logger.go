package monitoring

import (
	"fmt"
	"log"
	"sync/atomic"
)

// LogFunc is the printf-style sink used for diagnostics.
type LogFunc func(format string, v ...interface{})

var sink atomic.Pointer[LogFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic line through the current sink. It defaults to
// log.Printf; SetLogger redirects or mutes it.
func Logf(format string, v ...interface{}) {
	(*sink.Load())(format, v...)
}

// SetLogger replaces the sink. Passing nil installs a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	sink.Store(&f)
}

// Prefixed returns a logger that prepends prefix to every line.
func Prefixed(prefix string) LogFunc {
	return func(format string, v ...interface{}) {
		Logf(prefix+" "+format, v...)
	}
}

// Agent returns a logger for lines about a single agent.
func Agent(id string) LogFunc {
	return Prefixed(fmt.Sprintf("[agent %s]", id))
}
