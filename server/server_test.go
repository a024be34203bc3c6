package server

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"parlor/logsink"
	"parlor/session"
	"parlor/store"
	"parlor/telnet"
)

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

// negotiate performs the client half of the connect-time option
// exchange, accepting every option the server proposes.
func negotiate(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	req := make([]byte, 12)
	if _, err := readFull(conn, req); err != nil {
		t.Fatalf("read negotiation: %v", err)
	}
	reply := []byte{
		telnet.IAC, telnet.Do, telnet.OptTimingMark,
		telnet.IAC, telnet.Do, telnet.OptSGA,
		telnet.IAC, telnet.Will, telnet.OptSGA,
		telnet.IAC, telnet.Do, telnet.OptEcho,
	}
	if _, err := conn.Write(reply); err != nil {
		t.Fatalf("write negotiation reply: %v", err)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestAcceptNegotiatesAndSignsOn(t *testing.T) {
	reg := session.NewRegistry()
	st := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logs := logsink.NewWriter(&strings.Builder{})

	ln, err := Open(0, reg, st, logs, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	go ln.Serve()
	defer ln.Stop()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	negotiate(t, conn)

	readUntil(t, conn, "login:")

	conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
	conn.Write([]byte("alice\r\n"))
	readUntil(t, conn, "Password:")
	conn.Write([]byte("hunter2\r\n"))
	readUntil(t, conn, "Enter name:")
	conn.Write([]byte("\r\n"))
	readUntil(t, conn, "Enter blurb:")
	conn.Write([]byte("\r\n"))
	readUntil(t, conn, "Welcome to Parlor")

	if got, ok := reg.FindByNameOnly("Alice"); !ok || got == nil {
		t.Fatalf("Alice not registered after sign-on")
	}
}

// readUntil accumulates bytes from conn until the running total
// contains want, failing the test after 3 seconds of silence.
func readUntil(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	var got strings.Builder
	buf := make([]byte, 256)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
			if strings.Contains(got.String(), want) {
				return
			}
		}
		if err != nil && !strings.Contains(err.Error(), "timeout") && !strings.Contains(err.Error(), "deadline") {
			t.Fatalf("read: %v (have %q)", err, got.String())
		}
	}
	t.Fatalf("never saw %q; got %q", want, got.String())
}

func TestHandoffProbeDisplacesIncumbent(t *testing.T) {
	regA := session.NewRegistry()
	stA := newTestStore(t, "alice", "hunter2", "Alice", 10)
	logsA := logsink.NewWriter(&strings.Builder{})

	lnA, err := Open(0, regA, stA, logsA, Config{})
	if err != nil {
		t.Fatalf("Open A: %v", err)
	}
	go lnA.Serve()
	defer lnA.Stop()

	port := lnA.Addr().(*net.TCPAddr).Port

	regB := session.NewRegistry()
	stB := newTestStore(t, "bob", "swordfish", "Bob", 10)
	logsB := logsink.NewWriter(&strings.Builder{})

	result := make(chan error, 1)
	var lnB *Listener
	go func() {
		var err error
		lnB, err = Open(port, regB, stB, logsB, Config{})
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Open B: %v", err)
		}
		defer lnB.Stop()
	case <-time.After(15 * time.Second):
		t.Fatal("B never acquired the port after hand-off")
	}
}
