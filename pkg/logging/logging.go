// Package logging provides the bracket-tagged log.Printf convention used
// throughout this codebase (e.g. "[SyncManager] ...", "[Pipeline] ...").
package logging

import "log"

// Logger prefixes every line with a fixed component tag, mirroring the
// teacher's "[VectorSync]"-style inline tags but reusable across
// components instead of being hand-typed at every call site.
type Logger struct {
	tag string
}

// New returns a Logger tagging every line with the given component name.
func New(tag string) *Logger {
	return &Logger{tag: "[" + tag + "] "}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	log.Printf(l.tag+format, args...)
}

func (l *Logger) Println(args ...interface{}) {
	log.Println(append([]interface{}{l.tag}, args...)...)
}

// With returns a child logger with a sub-tag appended, e.g.
// New("SyncManager").With("U1/google") -> "[SyncManager/U1/google] ...".
func (l *Logger) With(subTag string) *Logger {
	return &Logger{tag: l.tag[:len(l.tag)-2] + "/" + subTag + "] "}
}
