// Package diag provides the debug and error output used across linescan.
package diag

import (
	"fmt"
	"io"
	"sync"
)

const prefix = "linescan: "

// Logger writes prefixed diagnostic lines. Debug output is dropped unless
// enabled. A nil *Logger discards everything.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	debug bool
}

// New creates a logger writing to w.
func New(w io.Writer, debug bool) *Logger {
	return &Logger{w: w, debug: debug}
}

// DebugEnabled reports whether Debugf writes anything.
func (l *Logger) DebugEnabled() bool {
	return l != nil && l.debug
}

// Debugf writes a debug line.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.DebugEnabled() {
		return
	}
	l.write(format, args...)
}

// Errorf writes an error line regardless of debug mode.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.write(format, args...)
}

func (l *Logger) write(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, prefix+format+"\n", args...)
}
