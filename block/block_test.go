package block

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	var b Buffer
	b.Write([]byte("hello, "))
	b.Write([]byte("world"))
	if got := b.Len(); got != 12 {
		t.Fatalf("Len() = %d, want 12", got)
	}
	out := make([]byte, 12)
	n := b.Read(out)
	if n != 12 || string(out) != "hello, world" {
		t.Fatalf("Read() = %q (n=%d), want %q", out[:n], n, "hello, world")
	}
	if !b.Empty() {
		t.Fatalf("Empty() = false after full read")
	}
}

func TestFlattenAcrossBlocks(t *testing.T) {
	var b Buffer
	payload := make([]byte, Size*3+17)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	b.Write(payload)
	flat := b.Flatten()
	if flat != string(payload) {
		t.Fatalf("Flatten() mismatch: len=%d want=%d", len(flat), len(payload))
	}
	if !b.Empty() {
		t.Fatalf("Empty() = false after Flatten")
	}
}

func TestPartialRead(t *testing.T) {
	var b Buffer
	b.Write([]byte("abcdef"))
	first := make([]byte, 3)
	if n := b.Read(first); n != 3 || string(first) != "abc" {
		t.Fatalf("first read = %q (n=%d)", first[:n], n)
	}
	if got := b.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	second := make([]byte, 3)
	if n := b.Read(second); n != 3 || string(second) != "def" {
		t.Fatalf("second read = %q (n=%d)", second[:n], n)
	}
}

func TestReset(t *testing.T) {
	var b Buffer
	b.Write(make([]byte, Size*2))
	b.Reset()
	if !b.Empty() || b.Len() != 0 {
		t.Fatalf("Reset() left buffer non-empty")
	}
}
