package logger

import "io"

var (
	CollectErrorEntries = collectErrorEntries
	FormatErrorEntries  = formatErrorEntries
)

// NewWithOutput builds a Logger bound to w for tests.
func NewWithOutput(w io.Writer, jsonMode bool) *Logger {
	return newLogger(w, jsonMode)
}

// JSONMode reports whether l writes JSON records.
func (l *Logger) JSONMode() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.jsonMode
}
