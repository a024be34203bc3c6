// Package logsink implements the server's append-only session-event
// log: a timestamped log file plus a "current" symlink pointing at
// it, written through a mutex-guarded io.Writer.
package logsink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink is an append-only, timestamped event log.
type Sink struct {
	mu     sync.Mutex
	writer io.Writer
	file   *os.File
}

// Open creates (or appends to, if a file with the same timestamp
// already exists) a log file named YYMMDD-HHMMSS under dir, and points
// dir/current at it. now is the timestamp the file is named with; the
// time stamps on individual log lines come from time.Now.
func Open(dir string, now time.Time) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logsink: mkdir %s: %w", dir, err)
	}
	name := now.Format("060102-150405")
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logsink: open %s: %w", path, err)
	}

	current := filepath.Join(dir, "current")
	os.Remove(current)
	if err := os.Symlink(name, current); err != nil {
		// Non-fatal: some filesystems (or containers) may not support
		// symlinks; the timestamped file is still written.
		fmt.Fprintf(os.Stderr, "logsink: symlink %s: %v\n", current, err)
	}

	return &Sink{writer: f, file: f}, nil
}

// NewWriter wraps an arbitrary io.Writer (used by tests, which don't
// want a real file on disk).
func NewWriter(w io.Writer) *Sink { return &Sink{writer: w} }

// Close closes the underlying log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func (s *Sink) logf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.writer, "%s %s\n", time.Now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
}

// Enter logs a sign-on, matching the original's "Enter: %s (%s) on fd
// #%d." message.
func (s *Sink) Enter(displayName, account string, fd int) {
	s.logf("Enter: %s (%s) on fd #%d.", displayName, account, fd)
}

// Exit logs a sign-off, distinguishing a connected session from one
// that was already detached.
func (s *Sink) Exit(displayName, account string, fd int, detached bool) {
	if detached {
		s.logf("Exit: %s (%s), detached.", displayName, account)
		return
	}
	s.logf("Exit: %s (%s) on fd #%d.", displayName, account, fd)
}

// Attach logs a re-attach to a detached session.
func (s *Sink) Attach(displayName, account string, fd int) {
	s.logf("Attach: %s (%s) on fd #%d.", displayName, account, fd)
}

// Detach logs a detach, intentional or accidental.
func (s *Sink) Detach(displayName, account string, fd int, intentional bool) {
	if intentional {
		s.logf("Detach: %s (%s) on fd #%d. (intentional)", displayName, account, fd)
		return
	}
	s.logf("Detach: %s (%s) on fd #%d. (accidental)", displayName, account, fd)
}

// Shutdown logs a shutdown request or cancellation.
func (s *Sink) Shutdown(format string, args ...any) { s.logf(format, args...) }

// Warn logs a non-fatal operational warning.
func (s *Sink) Warn(format string, args ...any) { s.logf("warning: "+format, args...) }

// Error logs a recoverable error.
func (s *Sink) Error(format string, args ...any) { s.logf("error: "+format, args...) }
