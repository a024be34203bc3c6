package editor

import "testing"

type captureSink struct {
	written string
	bells   int
}

func (c *captureSink) WriteString(s string) { c.written += s }
func (c *captureSink) Bell()                { c.bells++ }

func TestInsertAndAccept(t *testing.T) {
	b := New(80)
	b.SetPrompt("> ")
	sink := &captureSink{}
	for _, c := range []byte("hello") {
		b.InsertChar(sink, c)
	}
	if b.Point() != 5 || b.End() != 5 {
		t.Fatalf("point=%d end=%d, want 5,5", b.Point(), b.End())
	}
	line := b.Accept()
	if line != "hello" {
		t.Fatalf("Accept() = %q, want hello", line)
	}
	if b.Point() != 0 || b.End() != 0 || b.Prompt() != "" {
		t.Fatalf("buffer not rewound after Accept: point=%d end=%d prompt=%q", b.Point(), b.End(), b.Prompt())
	}
}

func TestInvariantPointWithinDataAndFree(t *testing.T) {
	b := New(80)
	sink := &captureSink{}
	for _, c := range []byte("abcdef") {
		b.InsertChar(sink, c)
	}
	b.BackwardChar(sink)
	b.BackwardChar(sink)
	if b.Point() < 0 || b.Point() > b.End() {
		t.Fatalf("point=%d out of [0,%d]", b.Point(), b.End())
	}
	if b.End() < 0 || b.End() > len(b.data) {
		t.Fatalf("end=%d out of [0,%d]", b.End(), len(b.data))
	}
}

func TestBackwardCharAtStartRingsBell(t *testing.T) {
	b := New(80)
	sink := &captureSink{}
	b.BackwardChar(sink)
	if sink.bells != 1 {
		t.Fatalf("bells = %d, want 1", sink.bells)
	}
}

func TestEraseCharBeforePoint(t *testing.T) {
	b := New(80)
	sink := &captureSink{}
	for _, c := range []byte("abc") {
		b.InsertChar(sink, c)
	}
	b.EraseCharBeforePoint(sink)
	if b.Accept() != "ab" {
		t.Fatalf("expected 'ab' after erase")
	}
}

func TestTransposeChars(t *testing.T) {
	b := New(80)
	sink := &captureSink{}
	for _, c := range []byte("ab") {
		b.InsertChar(sink, c)
	}
	b.TransposeChars(sink)
	if got := b.Accept(); got != "ba" {
		t.Fatalf("TransposeChars result = %q, want ba", got)
	}
}

func TestBufferGrowthPreservesOffsets(t *testing.T) {
	b := New(80)
	sink := &captureSink{}
	payload := make([]byte, BaseSize+50)
	for i := range payload {
		payload[i] = 'x'
	}
	for _, c := range payload {
		b.InsertChar(sink, c)
	}
	b.BackwardChar(sink)
	point := b.Point()
	end := b.End()
	if point != len(payload)-1 || end != len(payload) {
		t.Fatalf("point=%d end=%d after growth, want %d,%d", point, end, len(payload)-1, len(payload))
	}
	if len(b.data) < end {
		t.Fatalf("data capacity %d smaller than end %d", len(b.data), end)
	}
}

func TestAcceptShrinksStorageBackToBaseSize(t *testing.T) {
	b := New(80)
	sink := &captureSink{}
	for i := 0; i < BaseSize+10; i++ {
		b.InsertChar(sink, 'x')
	}
	b.Accept()
	if len(b.data) != BaseSize {
		t.Fatalf("data len = %d after Accept, want %d", len(b.data), BaseSize)
	}
}
