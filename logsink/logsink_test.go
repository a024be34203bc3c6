package logsink

import (
	"strings"
	"testing"
)

func TestEnterExitLogLines(t *testing.T) {
	var buf strings.Builder
	s := NewWriter(&buf)

	s.Enter("Alice", "guest", 4)
	s.Exit("Alice", "guest", 4, false)

	out := buf.String()
	if !strings.Contains(out, "Enter: Alice (guest) on fd #4.") {
		t.Fatalf("missing Enter line: %q", out)
	}
	if !strings.Contains(out, "Exit: Alice (guest) on fd #4.") {
		t.Fatalf("missing Exit line: %q", out)
	}
}

func TestExitDetachedOmitsFD(t *testing.T) {
	var buf strings.Builder
	s := NewWriter(&buf)
	s.Exit("Alice", "guest", 4, true)
	if !strings.Contains(buf.String(), "Exit: Alice (guest), detached.") {
		t.Fatalf("got %q", buf.String())
	}
}
