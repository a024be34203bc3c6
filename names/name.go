// Package names implements the reference-counted display-name
// capture, partial-name matching, and sendlist parsing used to route
// messages between sessions.
package names

import "sync"

// NameLen is the maximum length (including terminator) of a captured
// display name, matching the original server's NameLen constant.
const NameLen = 33

// SendlistLen is the maximum length of a stored sendlist, matching
// the original server's SendlistLen constant.
const SendlistLen = 33

// UnquotedUnderscore is the sentinel byte substituted for an
// unquoted underscore while parsing a sendlist. It compares equal to
// both '_' and ' ' in MatchName.
const UnquotedUnderscore = 0x80

// Name is an immutable captured display string plus a weak reference
// to whatever owns the display at capture time. Output objects that
// have been enqueued but not yet rendered hold a Name so that the
// name a message is attributed to reflects what it was when sent,
// even if the owner's display name changes (or it detaches) before
// delivery.
type Name struct {
	mu    sync.Mutex
	text  string
	refs  int
	owner any // *session.Session, held as any to avoid an import cycle
}

// New captures a name string with an initial reference count of one.
func New(owner any, text string) *Name {
	if len(text) >= NameLen {
		text = text[:NameLen-1]
	}
	return &Name{text: text, refs: 1, owner: owner}
}

// String returns the captured text.
func (n *Name) String() string {
	if n == nil {
		return ""
	}
	return n.text
}

// Owner returns the value the Name was captured from.
func (n *Name) Owner() any {
	if n == nil {
		return nil
	}
	return n.owner
}

// Ref increments the reference count; used whenever a new output
// object captures this Name.
func (n *Name) Ref() *Name {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	n.refs++
	n.mu.Unlock()
	return n
}

// Unref decrements the reference count. Names are not pooled (Go's
// GC reclaims them once unreferenced); Unref exists so call sites
// mirror the original server's intrusive reference counting and so
// a future chain-collapse optimization (collapsing unused leading
// Names, as the original Name constructor does) has a natural home.
func (n *Name) Unref() {
	if n == nil {
		return
	}
	n.mu.Lock()
	if n.refs > 0 {
		n.refs--
	}
	n.mu.Unlock()
}
