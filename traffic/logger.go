package traffic

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the narrow observability hook the core emits structured events
// through: breaker transitions, retry attempts, cache hits and misses.
// Key/value pairs alternate in keysAndValues. The core never formats or
// persists logs itself; adapters (e.g. the zap one in the logging package)
// bridge to a real logging stack.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes single-line level=... key=value events to stderr.
// Meant for development and tests.
type SimpleLogger struct {
	out *log.Logger
}

// NewSimpleLogger creates a console logger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{out: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logf("DEBUG", msg, keysAndValues...)
}

func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logf("INFO", msg, keysAndValues...)
}

func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logf("WARN", msg, keysAndValues...)
}

func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logf("ERROR", msg, keysAndValues...)
}

func (l *SimpleLogger) logf(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "level=%s msg=%q", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		fmt.Fprintf(&b, " %v=?", keysAndValues[len(keysAndValues)-1])
	}
	l.out.Print(b.String())
}
