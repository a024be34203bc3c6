// Package outstream implements the per-session pending output
// stream: an ordered queue of output objects with end-to-end
// sent/acknowledged tracking.
package outstream

import (
	"fmt"
	"time"

	"parlor/names"
)

// MessageKind distinguishes a public broadcast from a private
// message.
type MessageKind int

const (
	Public MessageKind = iota
	Private
)

// Sink is the rendering target an Object writes itself to. A
// Connection (package server) implements Sink; keeping the
// dependency as an interface here avoids an import cycle between
// outstream and server/telnet.
type Sink interface {
	// WriteLine writes one rendered line of output, terminated by
	// the connection's own CR/LF convention.
	WriteLine(string)
}

// Object is the algebraic output-object interface: Text, Message,
// and the four notification kinds all implement it. Render is called
// only at dequeue time, so that a display-name change between
// enqueue and delivery is observed.
type Object interface {
	Render(sink Sink)
	Timestamp() time.Time
}

type base struct{ when time.Time }

func (b base) Timestamp() time.Time { return b.when }

// Text is a pre-rendered line of plain text, used for prompts,
// command replies, and materialized undrawn-input flushes.
type Text struct {
	base
	Line string
}

// NewText wraps a line of text as a renderable output object.
func NewText(line string) *Text {
	return &Text{base: base{when: time.Now()}, Line: line}
}

func (t *Text) Render(sink Sink) { sink.WriteLine(t.Line) }

// Message is a public or private chat message, attributed to the
// Name captured at send time rather than at render time.
type Message struct {
	base
	Kind MessageKind
	From *names.Name
	Body string
}

// NewMessage captures a message from the given sender name.
func NewMessage(kind MessageKind, from *names.Name, body string) *Message {
	return &Message{base: base{when: time.Now()}, Kind: kind, From: from.Ref(), Body: body}
}

func (m *Message) Render(sink Sink) {
	ts := m.Timestamp().Format("15:04")
	switch m.Kind {
	case Public:
		sink.WriteLine(fmt.Sprintf("%s: [%s]", m.From.String(), ts))
		sink.WriteLine(" - " + m.Body)
	default:
		sink.WriteLine(fmt.Sprintf(">> Private message from %s: [%s]", m.From.String(), ts))
		sink.WriteLine(" - " + m.Body)
	}
}

// EntryNotify announces that a user has signed on.
type EntryNotify struct {
	base
	Who *names.Name
}

func NewEntryNotify(who *names.Name) *EntryNotify {
	return &EntryNotify{base: base{when: time.Now()}, Who: who.Ref()}
}

func (e *EntryNotify) Render(sink Sink) {
	sink.WriteLine(fmt.Sprintf("*** %s has entered. ***", e.Who.String()))
}

// ExitNotify announces that a user has signed off.
type ExitNotify struct {
	base
	Who *names.Name
}

func NewExitNotify(who *names.Name) *ExitNotify {
	return &ExitNotify{base: base{when: time.Now()}, Who: who.Ref()}
}

func (e *ExitNotify) Render(sink Sink) {
	sink.WriteLine(fmt.Sprintf("*** %s has left. ***", e.Who.String()))
}

// AttachNotify announces that a detached session has reattached.
type AttachNotify struct {
	base
	Who *names.Name
}

func NewAttachNotify(who *names.Name) *AttachNotify {
	return &AttachNotify{base: base{when: time.Now()}, Who: who.Ref()}
}

func (a *AttachNotify) Render(sink Sink) {
	sink.WriteLine(fmt.Sprintf("*** %s has attached. ***", a.Who.String()))
}

// DetachNotify announces that a session has detached, either
// intentionally (/detach) or because its connection was lost.
type DetachNotify struct {
	base
	Who         *names.Name
	Intentional bool
}

func NewDetachNotify(who *names.Name, intentional bool) *DetachNotify {
	return &DetachNotify{base: base{when: time.Now()}, Who: who.Ref(), Intentional: intentional}
}

func (d *DetachNotify) Render(sink Sink) {
	if d.Intentional {
		sink.WriteLine(fmt.Sprintf("*** %s has detached. ***", d.Who.String()))
	} else {
		sink.WriteLine(fmt.Sprintf("*** %s has gone away. ***", d.Who.String()))
	}
}
