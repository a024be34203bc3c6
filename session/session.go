package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"parlor/logsink"
	"parlor/names"
	"parlor/outstream"
	"parlor/store"
	"parlor/telnet"
	"parlor/trace"
)

// NameLen matches the original phoenix.h constant: the maximum length
// of a composed "name [blurb]" string, including the NUL terminator
// in the C original (so NameLen-1 usable bytes here).
const NameLen = names.NameLen

// SendlistLen matches phoenix.h's SendlistLen.
const SendlistLen = names.SendlistLen

// Connection is the network-facing half of a Session: the Telnet
// connection it is currently attached to, if any. server.Connection
// implements this; keeping it as an interface here avoids an import
// cycle between session and server/telnet.
type Connection interface {
	outstream.MarkSink
	SetPrompt(prompt string)
	SetMasked(masked bool)
	Bell()
	Close() error
	FD() int
	RemoteAddr() string

	// SetHandler rebinds the underlying Telnet engine's event handler,
	// used when a detached session re-attaches to this connection's
	// physical socket: the engine must deliver future
	// Line/Welcome/Acknowledge/RequestShutdown events to the reattached
	// Session, not the one that owned the connection during login.
	SetHandler(h telnet.Handler)
}

// Session is one conferencing participant. It outlives its Connection
// across detach/re-attach.
type Session struct {
	mu sync.Mutex

	reg   *Registry
	store *store.Store
	logs  *logsink.Sink

	conn   Connection
	stream outstream.Stream

	account   string
	hash      string
	privilege int

	nameOnly string
	blurb    string
	name     string
	nameObj  *names.Name

	defaultSendlist string
	lastSendlist    string

	loginTime  time.Time
	idleSince  time.Time
	detachedAt time.Time

	signedOn     bool
	signalPublic bool
	signalPrivate bool

	handler    func(line string)
	pending    []string
	helpText   func() string
	bannerText func() string
}

// SetHelpText installs a custom /help collaborator, overriding
// DefaultHelpText.
func (s *Session) SetHelpText(fn func() string) {
	s.mu.Lock()
	s.helpText = fn
	s.mu.Unlock()
}

// SetBannerText installs a custom connect-time banner collaborator,
// overriding DefaultBannerText.
func (s *Session) SetBannerText(fn func() string) {
	s.mu.Lock()
	s.bannerText = fn
	s.mu.Unlock()
}

// Line implements telnet.Handler: one accepted input line is
// delivered to the session's current handler.
func (s *Session) Line(text string) { s.Input(text) }

// Welcome implements telnet.Handler: it fires once the connect-time
// option negotiation barrier settles, printing the banner and the
// login prompt.
func (s *Session) Welcome() {
	s.mu.Lock()
	banner := s.bannerText
	s.mu.Unlock()
	if banner == nil {
		banner = DefaultBannerText
	}
	for _, l := range strings.Split(banner(), "\n") {
		s.conn.WriteLine(l)
	}
	s.conn.SetPrompt("login: ")
}

// RequestShutdown implements telnet.Handler: it fires when the
// private SHUTDOWN byte arrives over the loopback hand-off
// connection, requesting an immediate shutdown exactly as "!down !"
// would.
func (s *Session) RequestShutdown() {
	if s.reg.ShutdownRequest != nil {
		s.reg.ShutdownRequest(0, true, false)
	}
}

// DefaultBannerText is the built-in connect-time banner collaborator,
// used when no Session.SetBannerText override is installed.
func DefaultBannerText() string {
	return "Welcome to Parlor."
}

// New creates a fresh Session attached to conn, with the Login
// handler installed as its initial input function.
func New(reg *Registry, st *store.Store, logs *logsink.Sink, conn Connection) *Session {
	now := time.Now()
	s := &Session{
		reg:             reg,
		store:           st,
		logs:            logs,
		conn:            conn,
		defaultSendlist: "everyone",
		loginTime:       now,
		idleSince:       now,
		signalPublic:    true,
		signalPrivate:   true,
	}
	s.stream.Attach(conn, false)
	s.handler = s.loginHandler
	return s
}

// Input processes one line from the attached connection: it first
// drops acknowledged output, then either dispatches immediately or
// buffers the line if no handler is installed.
func (s *Session) Input(line string) {
	s.stream.Dequeue()

	if trace.IsEnabled() {
		s.mu.Lock()
		conn, who := s.conn, s.DisplayNameLocked()
		s.mu.Unlock()
		if conn != nil {
			trace.Input(conn.FD(), who, line)
		}
	}

	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		s.mu.Lock()
		s.pending = append(s.pending, line)
		s.mu.Unlock()
		return
	}
	h(line)
}

// setHandler installs a new input handler and replays any lines that
// queued up while no handler was set, per Session::SetInputFunction.
func (s *Session) setHandler(h func(string)) {
	s.mu.Lock()
	s.handler = h
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, line := range pending {
		h(line)
	}
}

// Acknowledge advances the output stream's ack cursor; called by the
// Telnet engine when the remote answers a TIMING-MARK.
func (s *Session) Acknowledge() { s.stream.Acknowledge() }

func (s *Session) print(format string, args ...any) {
	s.stream.Enqueue(outstream.NewText(fmt.Sprintf(format, args...)))
}

// Attach re-homes a pre-existing (possibly detached) Session onto a
// new Connection.
func (s *Session) Attach(conn Connection) {
	s.mu.Lock()
	s.conn = conn
	account := s.account
	s.mu.Unlock()

	s.mu.Lock()
	s.detachedAt = time.Time{}
	s.mu.Unlock()

	s.logs.Attach(s.DisplayName(), account, conn.FD())
	s.reg.Broadcast(outstream.NewAttachNotify(s.nameObj), s)
	s.stream.Attach(conn, true)
	s.stream.Enqueue(outstream.NewText("*** End of reviewed output. ***"))
}

// Detach disassociates the Session from its Connection. If the
// session never signed on, it is destroyed instead.
func (s *Session) Detach(intentional bool) {
	s.mu.Lock()
	signedOn := s.signedOn
	conn := s.conn
	account, display := s.account, s.DisplayNameLocked()
	s.mu.Unlock()

	if !signedOn {
		s.Close()
		return
	}

	fd := -1
	if conn != nil {
		fd = conn.FD()
	}
	s.logs.Detach(display, account, fd, intentional)
	s.reg.Broadcast(outstream.NewDetachNotify(s.nameObj, intentional), s)

	s.mu.Lock()
	s.conn = nil
	s.detachedAt = time.Now()
	s.mu.Unlock()
	s.stream.Detach()
}

// DetachedFor reports how long the session has been detached, and
// false if it is currently attached. Used by a reaper that destroys
// long-detached sessions per a configurable timeout.
func (s *Session) DetachedFor() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil || s.detachedAt.IsZero() {
		return 0, false
	}
	return time.Since(s.detachedAt), true
}

// Close tears the Session down entirely: unlinks it from the
// registry, notifies other sessions if it was signed on, and closes
// the Connection if still attached.
func (s *Session) Close() {
	s.reg.Remove(s)

	s.mu.Lock()
	signedOn := s.signedOn
	conn := s.conn
	s.conn = nil
	s.signedOn = false
	s.mu.Unlock()

	if signedOn {
		s.notifyExit(conn)
	}
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) notifyExit(conn Connection) {
	fd := -1
	detached := true
	if conn != nil {
		fd = conn.FD()
		detached = false
	}
	s.logs.Exit(s.DisplayName(), s.account, fd, detached)
	s.reg.Broadcast(outstream.NewExitNotify(s.nameObj), s)
}

// DisplayName returns the composed "name [blurb]" (or just name_only).
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DisplayNameLocked()
}

func (s *Session) DisplayNameLocked() string {
	if s.name != "" {
		return s.name
	}
	return s.nameOnly
}

// NameOnly returns the bare name (no blurb).
func (s *Session) NameOnly() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nameOnly
}

// Account returns the signed-in account name.
func (s *Session) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Privilege returns the account's privilege level.
func (s *Session) Privilege() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privilege
}

// SignedOn reports whether this Session completed login.
func (s *Session) SignedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedOn
}

// Attached reports whether a live Connection currently owns this
// Session (false when detached).
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// LoginTime and IdleSince expose timestamps for /who and /idle.
func (s *Session) LoginTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginTime
}

func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleSince
}

// Enqueue appends an output object to this session's stream.
func (s *Session) Enqueue(obj outstream.Object) { s.stream.Enqueue(obj) }

// ResetIdle resets idle_since to now, reporting the elapsed idle
// duration if it was at least min minutes, per Session::ResetIdle.
func (s *Session) ResetIdle(min int) int {
	s.mu.Lock()
	since := s.idleSince
	s.mu.Unlock()

	now := time.Now()
	idleMinutes := int(now.Sub(since).Minutes())

	if min > 0 && idleMinutes >= min {
		days := idleMinutes / (60 * 24)
		hours := (idleMinutes / 60) % 24
		minutes := idleMinutes % 60

		var parts []string
		if days > 0 {
			parts = append(parts, pluralize(days, "day"))
		}
		if hours > 0 {
			parts = append(parts, pluralize(hours, "hour"))
		}
		if minutes > 0 {
			parts = append(parts, pluralize(minutes, "minute"))
		}
		msg := "[You were idle for"
		if len(parts) == 0 {
			msg += " exactly 0 minutes"
		} else {
			msg += " " + joinWithAnd(parts)
		}
		s.print("%s.]", msg)
	}

	s.mu.Lock()
	s.idleSince = now
	s.mu.Unlock()
	return idleMinutes
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func joinWithAnd(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	out := ""
	for i, p := range parts {
		switch {
		case i == 0:
			out = p
		case i == len(parts)-1:
			out += " and " + p
		default:
			out += ", " + p
		}
	}
	return out
}
