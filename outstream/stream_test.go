package outstream

import (
	"strings"
	"testing"

	"parlor/names"
)

type recordingSink struct {
	lines []string
	marks int
}

func (r *recordingSink) WriteLine(s string) { r.lines = append(r.lines, s) }
func (r *recordingSink) Mark()              { r.marks++ }

func TestEnqueueRendersImmediatelyWhenAttached(t *testing.T) {
	var s Stream
	sink := &recordingSink{}
	s.Attach(sink, true)

	s.Enqueue(NewText("hello"))
	sent, ack, length := s.Counts()
	if sent != 1 || ack != 0 || length != 1 {
		t.Fatalf("counts = (%d,%d,%d), want (1,0,1)", sent, ack, length)
	}
	if len(sink.lines) != 1 || sink.lines[0] != "hello" {
		t.Fatalf("sink.lines = %v", sink.lines)
	}
	if sink.marks != 1 {
		t.Fatalf("marks = %d, want 1", sink.marks)
	}
}

func TestAcknowledgeNeverPassesSent(t *testing.T) {
	var s Stream
	s.Acknowledge()
	_, ack, _ := s.Counts()
	if ack != 0 {
		t.Fatalf("ack = %d, want 0 when nothing sent", ack)
	}
}

func TestDequeueDropsOnlyAcknowledged(t *testing.T) {
	var s Stream
	sink := &recordingSink{}
	s.Attach(sink, false)
	s.Enqueue(NewText("a"))
	s.Enqueue(NewText("b"))
	s.Acknowledge()
	s.Dequeue()
	sent, ack, length := s.Counts()
	if sent != 1 || ack != 0 || length != 1 {
		t.Fatalf("counts = (%d,%d,%d), want (1,0,1)", sent, ack, length)
	}
}

func TestAttachReplaysUnacknowledgedOutput(t *testing.T) {
	var s Stream
	first := &recordingSink{}
	s.Attach(first, false)
	s.Enqueue(NewText("one"))
	s.Enqueue(NewText("two"))
	s.Detach()

	second := &recordingSink{}
	s.Attach(second, false)
	if len(second.lines) != 2 {
		t.Fatalf("replay produced %v, want both lines resent", second.lines)
	}
}

func TestMessageRenderUsesCapturedName(t *testing.T) {
	sender := names.New(nil, "Alice")
	msg := NewMessage(Private, sender, "hi")
	sink := &recordingSink{}
	msg.Render(sink)
	joined := strings.Join(sink.lines, "\n")
	if !strings.Contains(joined, "Alice") || !strings.Contains(joined, "hi") {
		t.Fatalf("rendered = %q", joined)
	}
}
