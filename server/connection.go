// Package server implements the TCP listener, incumbent hand-off
// probe, and connection fabric, running one goroutine per accepted
// connection.
package server

import (
	"github.com/google/uuid"

	"parlor/telnet"
)

// Connection adapts a Telnet engine to the session.Connection
// interface, adding the small integer fd (for the "#<fd>" sendlist
// syntax and /who's "via" column) and a UUID, which is available only
// through UUID: neither /who nor the log sink shows it.
type Connection struct {
	*telnet.Engine
	fd int
	id uuid.UUID
}

// newConnection wraps engine with an fd and a freshly minted UUID.
func newConnection(engine *telnet.Engine, fd int) *Connection {
	return &Connection{Engine: engine, fd: fd, id: uuid.New()}
}

// FD returns the connection's small integer identifier.
func (c *Connection) FD() int { return c.fd }

// UUID returns the connection's unique identifier as a string.
func (c *Connection) UUID() string { return c.id.String() }

// RemoteAddr returns the remote peer's address as a string,
// satisfying session.Connection (telnet.Engine exposes a net.Addr).
func (c *Connection) RemoteAddr() string { return c.Engine.RemoteAddr().String() }

// SetPrompt records the prompt on the line editor and writes it to
// the terminal; called only when the editor's current line is empty
// (after Accept or before InputReady has echoed anything), so no
// redraw is needed beyond the prompt text itself.
func (c *Connection) SetPrompt(prompt string) {
	c.Engine.Buffer().SetPrompt(prompt)
	c.Engine.WriteString(prompt)
}

// SetMasked toggles password-style echo suppression on the line
// editor.
func (c *Connection) SetMasked(masked bool) {
	c.Engine.Buffer().SetMasked(masked)
}
