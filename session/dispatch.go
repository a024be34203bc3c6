package session

import (
	"fmt"
	"strings"

	"parlor/names"
	"parlor/outstream"
	"parlor/store"
)

// loginHandler processes the login-prompt response.
func (s *Session) loginHandler(line string) {
	if strings.EqualFold(line, "/bye") {
		s.Close()
		return
	}

	if strings.EqualFold(line, "guest") {
		s.mu.Lock()
		s.account = "guest"
		s.privilege = 0
		s.hash = ""
		s.mu.Unlock()
		s.conn.WriteLine("")
		s.conn.SetPrompt("Enter name: ")
		s.setHandler(s.nameHandler)
		return
	}

	cred, found := s.store.Lookup(line)
	if !found {
		if line != "" {
			s.conn.WriteLine("Login incorrect.")
		}
		s.conn.SetPrompt("login: ")
		return
	}

	s.mu.Lock()
	s.account = cred.User
	s.hash = cred.Hash
	s.privilege = cred.Privilege
	s.nameOnly = truncate(cred.DefaultName, NameLen-1)
	s.mu.Unlock()

	s.conn.WriteLine("")
	s.conn.WriteLine("Warning: password will not echo.")
	s.conn.WriteLine("")
	s.conn.SetPrompt("Password: ")
	s.conn.SetMasked(true)
	s.setHandler(s.passwordHandler)
}

// passwordHandler verifies the typed password against the stored
// hash, matching Session::Password.
func (s *Session) passwordHandler(line string) {
	s.conn.WriteLine("")
	s.conn.SetMasked(false)

	s.mu.Lock()
	hash := s.hash
	defaultName := s.nameOnly
	s.mu.Unlock()

	if !store.Verify(line, hash) {
		s.conn.WriteLine("Login incorrect.")
		s.conn.SetPrompt("login: ")
		s.setHandler(s.loginHandler)
		return
	}

	s.conn.WriteLine("")
	s.conn.WriteLine(fmt.Sprintf("Your default name is %q.", defaultName))
	s.conn.WriteLine("")
	s.conn.SetPrompt("Enter name: ")
	s.setHandler(s.nameHandler)
}

// nameHandler processes the display-name prompt, including the
// detached-session re-attach check, matching Session::DoName.
func (s *Session) nameHandler(line string) {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	if line == "" {
		if strings.EqualFold(account, "guest") {
			s.conn.WriteLine("")
			s.conn.SetPrompt("Enter name: ")
			return
		}
	} else {
		s.mu.Lock()
		s.nameOnly = truncate(line, NameLen-1)
		s.mu.Unlock()
	}

	s.mu.Lock()
	nameOnly := s.nameOnly
	s.mu.Unlock()

	if existing, ok := s.reg.FindByNameOnly(nameOnly); ok {
		if strings.EqualFold(existing.Account(), account) && !existing.Attached() {
			s.conn.WriteLine("Re-attaching to detached session...")
			conn := s.conn
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			// Rebind the Telnet engine's event handler to the reattached
			// session before handing it the connection, so the next line
			// of input reaches existing.Input instead of this orphaned s.
			conn.SetHandler(existing)
			existing.Attach(conn)
			return
		}
		s.conn.WriteLine("That name is already in use.  Choose another.")
		s.conn.SetPrompt("Enter name: ")
		return
	}

	s.conn.SetPrompt("Enter blurb: ")
	s.setHandler(s.blurbHandler)
}

// blurbHandler composes the final display name and signs the session
// on, matching Session::Blurb / Session::DoBlurb(entry=true).
func (s *Session) blurbHandler(line string) {
	over := s.setBlurb(line, true)
	if over > 0 {
		s.conn.WriteLine(fmt.Sprintf("The combination of your name and blurb is %d character%s too long.", over, plural(over)))
		s.conn.SetPrompt("Enter blurb: ")
		return
	}

	s.mu.Lock()
	s.signedOn = true
	s.mu.Unlock()

	s.mu.Lock()
	nameObj := s.nameObj
	s.mu.Unlock()

	s.logs.Enter(s.DisplayName(), s.Account(), s.conn.FD())
	s.reg.Broadcast(outstream.NewEntryNotify(nameObj), s)
	s.reg.Add(s)

	s.conn.WriteLine("")
	s.conn.WriteLine("")
	s.conn.WriteLine(`Welcome to Parlor.  Type "/help" for a list of commands.`)
	s.conn.WriteLine("")
	s.doWho()

	s.setHandler(s.normalHandler)
}

// setBlurb implements Session::DoBlurb: composes "name [blurb]",
// reporting the truncation overflow (entry=true suppresses the
// confirmation message printed on /blurb).
func (s *Session) setBlurb(text string, entry bool) int {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" || strings.EqualFold(text, "off") {
		s.blurb = ""
		s.name = s.nameOnly
		s.nameObj = names.New(s, s.name)
		if !entry {
			s.conn.WriteLine("Your blurb has been turned off.")
		}
		return 0
	}

	budget := NameLen - len(s.nameOnly) - 4 // room for " []" plus terminator
	over := len(text) - budget
	if over < 0 {
		over = 0
	}
	text = text[:len(text)-over]

	s.blurb = text
	s.name = fmt.Sprintf("%s [%s]", s.nameOnly, s.blurb)
	s.nameObj = names.New(s, s.name)
	if !entry {
		if over > 0 {
			s.conn.WriteLine(fmt.Sprintf("Your blurb has been truncated to [%s].", s.blurb))
		} else {
			s.conn.WriteLine(fmt.Sprintf("Your blurb has been set to [%s].", s.blurb))
		}
	}
	return over
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
