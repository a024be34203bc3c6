package server

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"parlor/editor"
	"parlor/logsink"
	"parlor/session"
	"parlor/store"
	"parlor/telnet"
	"parlor/trace"
)

// shutdownProbe is the two-byte IAC SHUTDOWN sequence sent over a
// loopback connection during incumbent hand-off.
var shutdownProbe = []byte{telnet.IAC, telnet.Shutdown}

// Listener accepts Telnet connections, handing each off to a fresh
// session.Session, and owns the incumbent hand-off probe and the
// shutdown choreography. Runs a goroutine per accepted connection
// rather than a single-threaded select loop.
type Listener struct {
	ln   net.Listener
	reg  *session.Registry
	st   *store.Store
	logs *logsink.Sink
	fds  *FDTable

	width int

	shutdown *shutdownController
	stopOnce chan struct{}
}

// Config collects the knobs a Listener needs beyond the store and log
// sink. It is separate from the config package so that server does not
// import config; cmd/parlor copies the values across.
type Config struct {
	// Width is the assumed terminal width for new connections' line
	// editors (0 selects editor.DefaultWidth).
	Width int

	// DetachTimeout destroys a detached session once it has sat
	// unattached this long; 0 disables the reaper.
	DetachTimeout time.Duration
}

// Open binds port, performing the EADDRINUSE hand-off probe if an
// incumbent is already listening there.
func Open(port int, reg *session.Registry, st *store.Store, logs *logsink.Sink, cfg Config) (*Listener, error) {
	addr := fmt.Sprintf(":%d", port)
	ln, err := bindWithHandoff(addr, logs)
	if err != nil {
		return nil, err
	}

	width := cfg.Width
	if width <= 0 {
		width = editor.DefaultWidth
	}

	l := &Listener{
		ln:       ln,
		reg:      reg,
		st:       st,
		logs:     logs,
		fds:      NewFDTable(),
		width:    width,
		stopOnce: make(chan struct{}),
	}
	l.shutdown = newShutdownController(reg, logs, l.stop)

	if cfg.DetachTimeout > 0 {
		go l.reapDetached(cfg.DetachTimeout)
	}
	return l, nil
}

// reapDetached destroys sessions that have sat detached longer than
// timeout, polling every tenth of the timeout (but no more often than
// once a second) until the listener stops.
func (l *Listener) reapDetached(timeout time.Duration) {
	interval := timeout / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopOnce:
			return
		case <-ticker.C:
			for _, s := range l.reg.All() {
				if since, detached := s.DetachedFor(); detached && since >= timeout {
					l.logs.Shutdown("Reaping %s: detached for %s.", s.DisplayName(), since.Round(time.Second))
					s.Close()
				}
			}
		}
	}
}

// bindWithHandoff binds addr, and on EADDRINUSE probes the incumbent
// over loopback, retrying the bind once a second until it succeeds.
func bindWithHandoff(addr string, logs *logsink.Sink) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, fmt.Errorf("server: bind %s: %w", addr, err)
	}

	_, port, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		// addr was ":PORT"; SplitHostPort handles that fine, so this
		// branch only fires for a malformed addr passed by the caller.
		return nil, fmt.Errorf("server: bind %s: %w", addr, err)
	}

	if probeAcked(port) {
		logs.Shutdown("Incumbent server acknowledged hand-off request; waiting for port %s to free up.", port)
	}

	for {
		time.Sleep(time.Second)
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("server: bind %s: %w", addr, err)
		}
	}
}

// probeAcked dials the incumbent on loopback, sends IAC SHUTDOWN, and
// reports whether it saw the same two bytes echoed back within 10
// seconds.
func probeAcked(port string) bool {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, 2*time.Second)
	if err != nil {
		return false
	}
	defer conn.Close()

	if _, err := conn.Write(shutdownProbe); err != nil {
		return false
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var got []byte
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			got = append(got, buf[:n]...)
		}
		if bytes.Contains(got, shutdownProbe) {
			return true
		}
		if err != nil {
			return false
		}
	}
}

// Addr returns the bound local address, mainly for tests that bind to
// port 0.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until Stop is called or the listener
// errors, spawning one goroutine per connection. It returns nil after
// a clean Stop, or the terminal accept error.
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stopOnce:
				return nil
			default:
				return err
			}
		}
		go l.handle(conn)
	}
}

// stop closes the listener and is installed as the shutdownController's
// stop callback; it is idempotent.
func (l *Listener) stop() {
	select {
	case <-l.stopOnce:
		return
	default:
		close(l.stopOnce)
	}
	l.ln.Close()
}

// Stop shuts the listener down without announcing or draining
// sessions, used by tests and by a supervisor that wants a bare close.
func (l *Listener) Stop() { l.stop() }

// handle negotiates Telnet options on a freshly accepted connection
// and drives its Session for the connection's lifetime, resolving the
// Engine/Session construction cycle via Engine.SetHandler.
func (l *Listener) handle(netConn net.Conn) {
	fd := l.fds.Acquire()
	trace.Accept(fd, netConn.RemoteAddr().String())

	engine := telnet.New(netConn, l.width, nil)
	conn := newConnection(engine, fd)
	sess := session.New(l.reg, l.st, l.logs, conn)
	engine.SetHandler(sess)

	engine.Negotiate()
	err := engine.Run() // returns when the peer closes or a read error occurs

	reason := "eof"
	if err != nil {
		reason = err.Error()
	}

	// The connection may have been reattached to a different Session
	// (session.nameHandler rebinds the Engine's handler on reattach),
	// so the session to tear down is whichever one currently owns the
	// connection, not necessarily the one this goroutine started with.
	owner := sess
	if h, ok := engine.Handler().(*session.Session); ok && h != nil {
		owner = h
	}
	trace.Close(fd, owner.DisplayName(), reason)

	l.fds.Release(fd)

	// If the handler already tore the session down itself (/bye) or
	// detached it (/detach), owner.Attached() is already false and
	// there is nothing left to do here.
	if owner.Attached() {
		if owner.SignedOn() {
			owner.Detach(false)
			conn.Close()
		} else {
			owner.Close()
		}
	}
}
