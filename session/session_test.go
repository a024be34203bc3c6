package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"parlor/logsink"
	"parlor/store"
	"parlor/telnet"
)

// fakeConn is an in-memory Connection used to drive Session through
// its handler chain without a real Telnet engine.
type fakeConn struct {
	mu     sync.Mutex
	fd     int
	lines  []string
	marks  int
	prompt string
	masked bool
	bells  int
	closed bool
	remote string
	handler telnet.Handler
}

func newFakeConn(fd int) *fakeConn { return &fakeConn{fd: fd, remote: "test"} }

func (c *fakeConn) WriteLine(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, s)
}
func (c *fakeConn) Mark()             { c.mu.Lock(); c.marks++; c.mu.Unlock() }
func (c *fakeConn) SetPrompt(p string) { c.mu.Lock(); c.prompt = p; c.mu.Unlock() }
func (c *fakeConn) SetMasked(m bool)   { c.mu.Lock(); c.masked = m; c.mu.Unlock() }
func (c *fakeConn) Bell()              { c.mu.Lock(); c.bells++; c.mu.Unlock() }
func (c *fakeConn) Close() error       { c.mu.Lock(); c.closed = true; c.mu.Unlock(); return nil }
func (c *fakeConn) FD() int            { return c.fd }
func (c *fakeConn) RemoteAddr() string { return c.remote }
func (c *fakeConn) SetHandler(h telnet.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeConn) allLines() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

func newTestStore(t *testing.T, user, password, defaultName string, priv int) *store.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "passwd")
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	content := fmt.Sprintf("%s:%s:%s:%d\n", user, hash, defaultName, priv)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// signOn drives a fresh Session through login/password/name/blurb
// with the given credentials, returning it at the normalHandler stage.
func signOn(t *testing.T, reg *Registry, st *store.Store, logs *logsink.Sink, fd int, user, password, name, blurb string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(fd)
	s := New(reg, st, logs, conn)
	s.Input(user)
	s.Input(password)
	s.Input(name)
	s.Input(blurb)
	if !s.SignedOn() {
		t.Fatalf("session did not sign on; transcript:\n%s", conn.allLines())
	}
	return s, conn
}

func TestLoginPasswordNameBlurbChain(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	s, conn := signOn(t, reg, st, logs, 4, "alice", "hunter2", "", "friendly")

	if s.DisplayName() != "Alice [friendly]" {
		t.Fatalf("DisplayName = %q", s.DisplayName())
	}
	if s.Account() != "alice" || s.Privilege() != 10 {
		t.Fatalf("account/privilege = %q/%d", s.Account(), s.Privilege())
	}
	if !strings.Contains(conn.allLines(), "Welcome to Parlor") {
		t.Fatalf("missing welcome banner: %q", conn.allLines())
	}
}

func TestLoginIncorrectPasswordReprompts(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})
	conn := newFakeConn(1)
	s := New(reg, st, logs, conn)

	s.Input("alice")
	s.Input("wrongpass")

	if s.SignedOn() {
		t.Fatalf("session signed on with wrong password")
	}
	if !strings.Contains(conn.allLines(), "Login incorrect.") {
		t.Fatalf("missing incorrect-login message: %q", conn.allLines())
	}
}

func TestGuestLoginSkipsPassword(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})
	conn := newFakeConn(2)
	s := New(reg, st, logs, conn)

	s.Input("guest")
	s.Input("Visitor")
	s.Input("")

	if !s.SignedOn() {
		t.Fatalf("guest session did not sign on; transcript:\n%s", conn.allLines())
	}
	if s.Account() != "guest" || s.Privilege() != 0 {
		t.Fatalf("account/privilege = %q/%d", s.Account(), s.Privilege())
	}
	if s.DisplayName() != "Visitor" {
		t.Fatalf("DisplayName = %q", s.DisplayName())
	}
}

func TestPrivateMessageByPartialName(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	st2 := newTestStore(t, "bob", "swordfish", "Bob", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	_, aliceConn := signOn(t, reg, st, logs, 4, "alice", "hunter2", "", "")
	_, bobConn := signOn(t, reg, st2, logs, 5, "bob", "swordfish", "", "")

	aliceConn.lines, bobConn.lines = nil, nil
	aliceSession, _ := reg.FindByNameOnly("Alice")
	if aliceSession == nil {
		t.Fatalf("Alice not found in registry")
	}
	aliceSession.Input("bo:hi there")

	if !strings.Contains(bobConn.allLines(), "hi there") {
		t.Fatalf("Bob did not receive message: %q", bobConn.allLines())
	}
	if !strings.Contains(aliceConn.allLines(), "message sent to Bob") {
		t.Fatalf("Alice missing send confirmation: %q", aliceConn.allLines())
	}
}

func TestUnquotedUnderscoreMatchesSpace(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice Smith", 10)
	st2 := newTestStore(t, "bob", "swordfish", "Bob", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	_, aliceConn := signOn(t, reg, st, logs, 4, "alice", "hunter2", "", "")
	_, bobConn := signOn(t, reg, st2, logs, 5, "bob", "swordfish", "", "")

	aliceConn.lines, bobConn.lines = nil, nil
	bobSession, _ := reg.FindByNameOnly("Bob")
	bobSession.Input("alice_smith:hey")

	if !strings.Contains(aliceConn.allLines(), "hey") {
		t.Fatalf("Alice did not receive underscore-matched message: %q", aliceConn.allLines())
	}
}

func TestDetachAndReattach(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	s, conn := signOn(t, reg, st, logs, 4, "alice", "hunter2", "", "")
	s.Input("/detach")

	if s.Attached() {
		t.Fatalf("session still attached after /detach")
	}
	if !conn.closed {
		t.Fatalf("connection not closed after detach")
	}

	newConn := newFakeConn(9)
	s2 := New(reg, st, logs, newConn)
	s2.Input("alice")
	s2.Input("hunter2")
	s2.Input("Alice")

	if s2.SignedOn() {
		t.Fatalf("reattaching session should not itself sign on")
	}
	if !s.Attached() {
		t.Fatalf("original session was not reattached")
	}
}

func TestBareSpaceResetsIdleAndReportsBanner(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	s, conn := signOn(t, reg, st, logs, 4, "alice", "hunter2", "", "")
	s.mu.Lock()
	s.idleSince = s.idleSince.Add(-2 * 60 * 1e9) // 2 minutes in the past
	s.mu.Unlock()

	conn.lines = nil
	s.Input(" ")
	if !strings.Contains(conn.allLines(), "You were idle for") {
		t.Fatalf("missing idle banner: %q", conn.allLines())
	}
}

func TestWhoListsSignedOnUsers(t *testing.T) {
	reg := NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	s, conn := signOn(t, reg, st, logs, 4, "alice", "hunter2", "", "")
	conn.lines = nil
	s.Input("/who")
	if !strings.Contains(conn.allLines(), "Alice") {
		t.Fatalf("missing name in /who output: %q", conn.allLines())
	}
}
