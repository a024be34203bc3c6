// Package trace provides filterable, timestamped connection-event
// tracing for the -trace command-line flag: a glob-filtered,
// mutex-guarded io.Writer keyed on session display names and fd
// numbers.
package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Tracer writes filtered connection-lifecycle and line-traffic events
// to an io.Writer.
type Tracer struct {
	enabled bool
	filters []string
	writer  io.Writer
	mu      sync.Mutex
}

var global *Tracer

// Init installs the global tracer. filters are glob patterns matched
// against a session's display name; an empty filter list traces
// everyone. writer defaults to os.Stderr.
func Init(enabled bool, filters []string, writer io.Writer) {
	if writer == nil {
		writer = os.Stderr
	}
	global = &Tracer{enabled: enabled, filters: filters, writer: writer}
}

// IsEnabled reports whether the global tracer was initialized with
// tracing on.
func IsEnabled() bool { return global != nil && global.enabled }

func (t *Tracer) matches(who string) bool {
	if len(t.filters) == 0 {
		return true
	}
	for _, pattern := range t.filters {
		if ok, _ := filepath.Match(pattern, who); ok {
			return true
		}
	}
	return false
}

func (t *Tracer) logf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.writer, "[trace] "+format+"\n", args...)
}

// Accept logs a newly accepted connection, before login.
func (t *Tracer) Accept(fd int, remote string) {
	if !t.enabled {
		return
	}
	t.logf("accept fd=%d remote=%s", fd, remote)
}

// Input logs one line of input read from a session, including lines
// typed before sign-on, when who holds only the name known so far
// (possibly empty).
func (t *Tracer) Input(fd int, who, line string) {
	if !t.enabled || !t.matches(who) {
		return
	}
	t.logf("input fd=%d who=%q %q", fd, who, line)
}

// Output logs one rendered output line queued to a session.
func (t *Tracer) Output(fd int, who, line string) {
	if !t.enabled || !t.matches(who) {
		return
	}
	t.logf("output fd=%d who=%q %q", fd, who, line)
}

// Close logs a connection's teardown.
func (t *Tracer) Close(fd int, who, reason string) {
	if !t.enabled {
		return
	}
	t.logf("close fd=%d who=%q reason=%s", fd, who, reason)
}

// Global convenience wrappers so call sites don't need to carry a
// *Tracer around.

func Accept(fd int, remote string) {
	if global != nil {
		global.Accept(fd, remote)
	}
}

func Input(fd int, who, line string) {
	if global != nil {
		global.Input(fd, who, line)
	}
}

func Output(fd int, who, line string) {
	if global != nil {
		global.Output(fd, who, line)
	}
}

func Close(fd int, who, reason string) {
	if global != nil {
		global.Close(fd, who, reason)
	}
}
