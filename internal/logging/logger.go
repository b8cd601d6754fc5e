// Package logging defines the logger the registry packages depend on.
package logging

import (
	"slices"
	"sync"
)

// Logger provides structured logging. The args follow slog conventions:
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}

// Discard drops every entry.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

// Level names the severity of a recorded entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one recorded log call.
type Entry struct {
	Level Level
	Msg   string
	Args  []any
}

// Attr returns the value logged under key, if any.
func (e Entry) Attr(key string) (any, bool) {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1], true
		}
	}
	return nil, false
}

// Recorder keeps every entry in memory so tests can assert on what was
// logged. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) record(level Level, msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Args: slices.Clone(args)})
}

func (r *Recorder) Debug(msg string, args ...any) { r.record(LevelDebug, msg, args) }
func (r *Recorder) Info(msg string, args ...any)  { r.record(LevelInfo, msg, args) }
func (r *Recorder) Warn(msg string, args ...any)  { r.record(LevelWarn, msg, args) }
func (r *Recorder) Error(msg string, args ...any) { r.record(LevelError, msg, args) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Find returns the entries logged with msg.
func (r *Recorder) Find(msg string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}
