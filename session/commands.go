package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"parlor/names"
	"parlor/outstream"
)

// normalHandler dispatches a signed-on session's input line.
func (s *Session) normalHandler(line string) {
	switch {
	case strings.HasPrefix(line, "!"):
		if s.Privilege() < 50 {
			s.conn.WriteLine("Sorry, all !commands are privileged.")
			return
		}
		s.dispatchBang(line)
	case strings.HasPrefix(line, "/"):
		s.dispatchSlash(line)
	case line == " ":
		s.ResetIdle(1)
	case line != "":
		s.doMessage(line)
	}
}

func (s *Session) dispatchBang(line string) {
	rest := strings.TrimPrefix(line, "!")
	switch {
	case hasCaselessPrefix(rest, "down"):
		s.doDown(strings.TrimSpace(strings.TrimPrefix(rest, rest[:4])))
	case hasCaselessPrefix(rest, "nuke "):
		s.doNuke(strings.TrimSpace(rest[5:]))
	default:
		s.conn.WriteLine("Unknown !command.")
	}
}

func (s *Session) dispatchSlash(line string) {
	switch {
	case hasCaselessPrefix(line, "/bye"):
		s.Close()
	case hasCaselessPrefix(line, "/clear"):
		s.conn.WriteLine("\033[H\033[J")
	case hasCaselessPrefix(line, "/unidle"):
		s.ResetIdle(1)
	case hasCaselessPrefix(line, "/detach"):
		s.doDetach()
	case hasCaselessPrefix(line, "/who"):
		s.doWho()
	case hasCaselessPrefix(line, "/idl"):
		s.doIdle()
	case strings.EqualFold(line, "/date"):
		s.conn.WriteLine(time.Now().Format("Mon Jan  2 15:04:05 2006"))
	case hasCaselessPrefix(line, "/signal"):
		s.doSignal(strings.TrimPrefix(line, line[:7]))
	case hasCaselessPrefix(line, "/send"):
		s.doSend(strings.TrimPrefix(line, line[:5]))
	case hasCaselessPrefix(line, "/why"):
		s.doWhy()
	case hasCaselessPrefix(line, "/blu"):
		rest := line
		for len(rest) > 0 && rest[0] != ' ' && rest[0] != '\t' {
			rest = rest[1:]
		}
		s.setBlurb(rest, false)
	case hasCaselessPrefix(line, "/help"):
		s.doHelp()
	default:
		s.conn.WriteLine("Unknown /command.  Type /help for help.")
	}
}

func hasCaselessPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// doDown implements the !down command: immediate ("!down !"), timed
// ("!down N"), or cancel ("!down cancel"), per Session::DoDown.
func (s *Session) doDown(args string) {
	display, account := s.DisplayName(), s.Account()

	switch {
	case args == "!":
		s.logs.Shutdown("Immediate shutdown requested by %s (%s).", display, account)
		s.reg.Announce(fmt.Sprintf("*** %s has shut down the server! ***", display))
		s.reg.Announce("\a\a>>> Server shutting down NOW!  Goodbye. <<<\a\a")
		if s.reg.ShutdownRequest != nil {
			s.reg.ShutdownRequest(0, true, false)
		}
	case strings.EqualFold(args, "cancel"):
		s.logs.Shutdown("Shutdown cancelled by %s (%s).", display, account)
		s.reg.Announce(fmt.Sprintf("*** %s has cancelled the server shutdown. ***", display))
		if s.reg.ShutdownRequest != nil {
			s.reg.ShutdownRequest(0, false, true)
		}
	default:
		seconds, err := strconv.Atoi(args)
		if err != nil {
			seconds = 30
		}
		s.logs.Shutdown("Shutdown requested by %s (%s) in %d seconds.", display, account, seconds)
		s.reg.Announce(fmt.Sprintf("*** %s has shut down the server! ***", display))
		s.reg.Announce(fmt.Sprintf("\a\a>>> This server will shutdown in %d seconds... <<<\a\a", seconds))
		if s.reg.ShutdownRequest != nil {
			s.reg.ShutdownRequest(seconds, false, false)
		}
	}
}

// doNuke implements !nuke [!]<name>, per Session::DoNuke. Both forms
// close the target with Session.Close at once; the '!' prefix changes
// only the confirmation wording, and no drain of pending output is
// performed for either form.
func (s *Session) doNuke(args string) {
	drain := true
	if strings.HasPrefix(args, "!") {
		drain = false
		args = args[1:]
	}

	var target *Session
	if strings.EqualFold(args, "me") {
		target = s
	} else {
		t, extra, count := s.reg.MatchByName(args)
		switch count {
		case 0:
			s.conn.WriteLine(fmt.Sprintf("\a\aNo names matched %q. (nobody nuked)", names.Display(args)))
			return
		case 1:
			target = t
		default:
			s.conn.WriteLine(fmt.Sprintf("\a\a%q matches %d names, including %q and %q. (nobody nuked)",
				names.Display(args), count, t.NameOnly(), extra.NameOnly()))
			return
		}
	}

	if drain {
		s.conn.WriteLine(fmt.Sprintf("%q has been nuked.", target.NameOnly()))
	} else {
		s.conn.WriteLine(fmt.Sprintf("%q has been nuked immediately.", target.NameOnly()))
	}

	display, account := s.DisplayName(), s.Account()
	if target.Attached() {
		s.logs.Warn("%s (%s) has been nuked by %s (%s).", target.NameOnly(), target.Account(), display, account)
		target.Enqueue(outstream.NewText(fmt.Sprintf("\a\a\a*** You have been nuked by %s. ***", display)))
	} else {
		s.logs.Warn("%s (%s), detached, has been nuked by %s (%s).", target.NameOnly(), target.Account(), display, account)
	}
	target.Close()
}

func (s *Session) doDetach() {
	s.conn.WriteLine("You have been detached.")
	conn := s.conn
	s.Detach(true)
	conn.Close()
}

// doWho implements /who's column-formatted listing, per
// Session::DoWho.
func (s *Session) doWho() {
	all := s.reg.All()
	if len(all) == 0 {
		s.conn.WriteLine("Nobody is signed on.")
		return
	}

	s.conn.WriteLine("")
	s.conn.WriteLine(" Name                              On Since   Idle  User         Via")
	s.conn.WriteLine(" ----                              --------   ----  ----         ---")

	now := time.Now()
	for _, sess := range all {
		mark := " "
		if !sess.Attached() {
			mark = "~"
		}
		since := ""
		if sess.Attached() {
			since = formatSince(now, sess.LoginTime())
		} else {
			since = "detached"
		}
		idle := formatIdleWho(now, sess.IdleSince(), sess.Attached())
		via := ""
		sess.mu.Lock()
		if sess.conn != nil {
			via = fmt.Sprintf("#%d", sess.conn.FD())
		}
		sess.mu.Unlock()
		s.conn.WriteLine(fmt.Sprintf("%s%-32s  %-10s %s%-8s %s", mark, sess.DisplayName(), since, idle, sess.Account(), via))
	}
}

func formatSince(now, login time.Time) string {
	if now.Sub(login) < 24*time.Hour {
		return login.Format("15:04:05")
	}
	return login.Format("Jan  2")
}

func formatIdleWho(now, idleSince time.Time, attached bool) string {
	idle := int(now.Sub(idleSince).Minutes())
	if idle == 0 {
		return "          "
	}
	hours := idle / 60
	minutes := idle - hours*60
	days := hours / 24
	hours -= days * 24
	switch {
	case days > 9 || (days > 0 && !attached):
		return fmt.Sprintf("%2dd%02d:%02d ", days, hours, minutes)
	case days > 0:
		return fmt.Sprintf("%dd%02d:%02d  ", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("  %2d:%02d  ", hours, minutes)
	default:
		return fmt.Sprintf("     %2d  ", minutes)
	}
}

// doIdle implements /idle's two-column variant, per Session::DoIdle.
func (s *Session) doIdle() {
	all := s.reg.All()
	if len(all) == 0 {
		s.conn.WriteLine("Nobody is signed on.")
		return
	}

	if len(all) == 1 {
		s.conn.WriteLine(" Name                              Idle")
		s.conn.WriteLine(" ----                              ----")
	} else {
		s.conn.WriteLine(" Name                              Idle  Name                              Idle")
		s.conn.WriteLine(" ----                              ----  ----                              ----")
	}

	now := time.Now()
	var row strings.Builder
	col := 0
	for _, sess := range all {
		mark := " "
		if !sess.Attached() {
			mark = "~"
		}
		row.WriteString(fmt.Sprintf("%s%-32s %s", mark, sess.DisplayName(), formatIdleShort(now, sess.IdleSince())))
		if col == 1 {
			s.conn.WriteLine(row.String())
			row.Reset()
		} else {
			row.WriteString("  ")
		}
		col = 1 - col
	}
	if col == 1 {
		s.conn.WriteLine(row.String())
	}
}

func formatIdleShort(now, idleSince time.Time) string {
	idle := int(now.Sub(idleSince).Minutes())
	if idle == 0 {
		return "     "
	}
	hours := idle / 60
	minutes := idle - hours*60
	days := hours / 24
	hours -= days * 24
	switch {
	case days > 9:
		return fmt.Sprintf("%2dd%02d", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd%02dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%2d:%02d", hours, minutes)
	default:
		return fmt.Sprintf("   %2d", minutes)
	}
}

// doSignal implements /signal [on|off|public on/off|private on/off].
func (s *Session) doSignal(arg string) {
	p := strings.TrimSpace(arg)
	switch {
	case hasCaselessPrefix(p, "on"):
		s.mu.Lock()
		s.signalPublic, s.signalPrivate = true, true
		s.mu.Unlock()
		s.conn.WriteLine("All signals are now on.")
	case hasCaselessPrefix(p, "off"):
		s.mu.Lock()
		s.signalPublic, s.signalPrivate = false, false
		s.mu.Unlock()
		s.conn.WriteLine("All signals are now off.")
	case hasCaselessPrefix(p, "public"):
		sub := strings.TrimSpace(p[6:])
		switch {
		case hasCaselessPrefix(sub, "on"):
			s.mu.Lock()
			s.signalPublic = true
			s.mu.Unlock()
			s.conn.WriteLine("Signals for public messages are now on.")
		case hasCaselessPrefix(sub, "off"):
			s.mu.Lock()
			s.signalPublic = false
			s.mu.Unlock()
			s.conn.WriteLine("Signals for public messages are now off.")
		default:
			s.conn.WriteLine("/signal public syntax error!")
		}
	case hasCaselessPrefix(p, "private"):
		sub := strings.TrimSpace(p[7:])
		switch {
		case hasCaselessPrefix(sub, "on"):
			s.mu.Lock()
			s.signalPrivate = true
			s.mu.Unlock()
			s.conn.WriteLine("Signals for private messages are now on.")
		case hasCaselessPrefix(sub, "off"):
			s.mu.Lock()
			s.signalPrivate = false
			s.mu.Unlock()
			s.conn.WriteLine("Signals for private messages are now off.")
		default:
			s.conn.WriteLine("/signal private syntax error!")
		}
	default:
		s.conn.WriteLine("/signal syntax error!")
	}
}

// doWhy answers the original's "Why not?" joke, supplemented with the
// sendlist that actually resolved the last message, per
// Session::DoWhy.
func (s *Session) doWhy() {
	s.conn.WriteLine("Why not?")
	s.mu.Lock()
	last := s.lastSendlist
	s.mu.Unlock()
	if last != "" {
		s.conn.WriteLine(fmt.Sprintf("(Your last message was sent using the sendlist %q.)", last))
	}
}

// doSend implements /send [off|everyone|<sendlist>].
func (s *Session) doSend(arg string) {
	p := strings.TrimSpace(arg)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case p == "":
		switch {
		case s.defaultSendlist == "":
			s.conn.WriteLine("Your default sendlist is turned off.")
		case strings.EqualFold(s.defaultSendlist, "everyone"):
			s.conn.WriteLine("You are sending to everyone.")
		default:
			s.conn.WriteLine(fmt.Sprintf("Your default sendlist is set to %q.", s.defaultSendlist))
		}
	case strings.EqualFold(p, "off"):
		s.defaultSendlist = ""
		s.conn.WriteLine("Your default sendlist has been turned off.")
	case strings.EqualFold(p, "everyone"):
		s.defaultSendlist = "everyone"
		s.conn.WriteLine("You are now sending to everyone.")
	default:
		s.defaultSendlist = truncate(p, SendlistLen-1)
		s.conn.WriteLine(fmt.Sprintf("Your default sendlist is now set to %q.", s.defaultSendlist))
	}
}

// doHelp prints the command summary. The text itself is an injectable
// collaborator so deployments can customize it without touching
// dispatch logic.
func (s *Session) doHelp() {
	s.mu.Lock()
	text := s.helpText
	s.mu.Unlock()
	if text == nil {
		text = DefaultHelpText
	}
	for _, l := range strings.Split(text(), "\n") {
		s.conn.WriteLine(l)
	}
}

// DefaultHelpText is the built-in /help collaborator, used when no
// Session.SetHelpText override is installed.
func DefaultHelpText() string {
	return strings.Join([]string{
		"Currently known commands:",
		"",
		"/blurb -- set a descriptive blurb",
		"/bye -- leave the conference",
		"/clear -- clear the screen",
		"/date -- display current date and time",
		"/detach -- detach from the session, leaving it running",
		"/help -- gives this thrilling message",
		"/idle -- list how long each user has been idle",
		"/send -- specify default sendlist",
		"/signal -- turns public/private signals on/off",
		"/unidle -- reset your idle time",
		"/who -- gives a list of who is connected",
		"No other /commands are implemented yet. [except /why! :-)]",
		"",
		`There are two ways to specify a user to send a private message.  You can use`,
		`either a '#' and the fd number for the user, (as listed by /who) or any`,
		`substring of the user's name. (case-insensitive)  Follow either form with`,
		`a semicolon or colon and the message. (e.g. "#4;hi", "dev;hi", ...)`,
		"",
		"Any other line not beginning with a slash is simply sent to everyone.",
		"",
		"The following are recognized as smileys instead of as sendlists:",
		"",
		"\t:-) :-( :-P ;-) :_) :_( :) :( :P ;)",
	}, "\n")
}

// doMessage routes one line of chat input, per Session::DoMessage.
func (s *Session) doMessage(line string) {
	sendlist, body, explicit := names.ParseSendlist(line)

	if sendlist == "" {
		s.mu.Lock()
		last := s.lastSendlist
		s.mu.Unlock()
		if last == "" {
			s.conn.WriteLine("\a\aYou have no previous sendlist. (message not sent)")
			return
		}
		sendlist = last
	} else if strings.EqualFold(sendlist, "default") {
		s.mu.Lock()
		def := s.defaultSendlist
		s.mu.Unlock()
		if def == "" {
			s.conn.WriteLine("\a\aYou have no default sendlist. (message not sent)")
			return
		}
		sendlist = def
	}

	if explicit && sendlist != "" {
		s.mu.Lock()
		s.lastSendlist = truncate(sendlist, SendlistLen-1)
		s.mu.Unlock()
	}

	if strings.EqualFold(sendlist, "everyone") {
		s.sendEveryone(body)
	} else {
		s.sendPrivate(sendlist, body)
	}
}

// sendEveryone broadcasts body to every other signed-on session, per
// Session::SendEveryone.
func (s *Session) sendEveryone(msg string) {
	s.mu.Lock()
	from := s.nameObj
	s.mu.Unlock()

	sent := 0
	for _, other := range s.reg.All() {
		if other == s {
			continue
		}
		other.Enqueue(outstream.NewMessage(outstream.Public, from, msg))
		sent++
	}

	switch sent {
	case 0:
		s.conn.WriteLine("\a\aThere is no one else here! (message not sent)")
	case 1:
		s.ResetIdle(10)
		s.conn.WriteLine("(message sent to everyone.) [1 person]")
	default:
		s.ResetIdle(10)
		s.conn.WriteLine(fmt.Sprintf("(message sent to everyone.) [%d people]", sent))
	}
}

// sendPrivate routes body to the session matching sendlist, by fd
// ("#4"), name substring, or "me", per Session::SendPrivate.
func (s *Session) sendPrivate(sendlist, msg string) {
	s.mu.Lock()
	from := s.nameObj
	display := s.name
	if display == "" {
		display = s.nameOnly
	}
	s.mu.Unlock()

	if strings.EqualFold(sendlist, "me") {
		s.ResetIdle(10)
		s.conn.WriteLine(fmt.Sprintf("(message sent to %s.)", display))
		s.Enqueue(outstream.NewMessage(outstream.Private, from, msg))
		return
	}

	if strings.HasPrefix(sendlist, "#") {
		if fd, err := strconv.Atoi(sendlist[1:]); err == nil {
			if dest, ok := s.reg.FindByFD(fd); ok {
				s.ResetIdle(10)
				s.conn.WriteLine(fmt.Sprintf("(message sent to %s.)", dest.DisplayName()))
				dest.Enqueue(outstream.NewMessage(outstream.Private, from, msg))
				return
			}
		}
	}

	dest, extra, count := s.reg.MatchByName(sendlist)
	switch count {
	case 0:
		s.conn.WriteLine(fmt.Sprintf("\a\aNo names matched %q. (message not sent)", names.Display(sendlist)))
	case 1:
		s.ResetIdle(10)
		s.conn.WriteLine(fmt.Sprintf("(message sent to %s.)", dest.DisplayName()))
		dest.Enqueue(outstream.NewMessage(outstream.Private, from, msg))
	default:
		s.conn.WriteLine(fmt.Sprintf("\a\a%q matches %d names, including %q and %q. (message not sent)",
			names.Display(sendlist), count, dest.NameOnly(), extra.NameOnly()))
	}
}
