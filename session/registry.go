// Package session implements the per-connection conferencing Session
// and its input-handler dispatch chain.
package session

import (
	"strings"
	"sync"

	"parlor/names"
	"parlor/outstream"
)

// Registry is the global, thread-safe list of signed-on sessions: a
// mutex-guarded slice, mutated concurrently from one goroutine per
// connection.
type Registry struct {
	mu       sync.RWMutex
	sessions []*Session

	// ShutdownRequest is invoked by the !down/!down cancel commands.
	// immediate=true (or seconds<=0) means "shut down now"; cancel=true
	// means "cancel a pending shutdown". Wired by the server package.
	ShutdownRequest func(seconds int, immediate, cancel bool)
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry { return &Registry{} }

// Add links a newly signed-on session into the registry.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

// Remove unlinks a session, e.g. on Close/DoBye.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.sessions {
		if cur == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return
		}
	}
}

// All returns a snapshot of the currently signed-on sessions, safe to
// range over without holding the registry lock.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// FindByNameOnly looks up a session by exact, case-insensitive
// name_only match, as Session::DoName and Session::DoNuke do.
func (r *Registry) FindByNameOnly(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.mu.Lock()
		match := strings.EqualFold(s.nameOnly, name)
		s.mu.Unlock()
		if match {
			return s, true
		}
	}
	return nil, false
}

// FindByFD looks up a session by its connection's file descriptor,
// for the "#4;message" private-message syntax documented by /help.
func (r *Registry) FindByFD(fd int) (*Session, bool) {
	for _, s := range r.All() {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil && conn.FD() == fd {
			return s, true
		}
	}
	return nil, false
}

// MatchByName finds sessions whose name_only matches sendlist via
// names.MatchName, with an exact case-insensitive match winning
// outright.
func (r *Registry) MatchByName(sendlist string) (target *Session, extra *Session, count int) {
	for _, s := range r.All() {
		s.mu.Lock()
		nameOnly := s.nameOnly
		s.mu.Unlock()

		if strings.EqualFold(nameOnly, sendlist) {
			return s, nil, 1
		}
		if names.MatchName(nameOnly, sendlist) {
			count++
			if count == 1 {
				target = s
			} else {
				extra = s
			}
		}
	}
	return target, extra, count
}

// Broadcast enqueues obj on every session's output stream except
// `except` (pass nil to broadcast to all).
func (r *Registry) Broadcast(obj outstream.Object, except *Session) {
	for _, s := range r.All() {
		if s == except {
			continue
		}
		s.stream.Enqueue(obj)
	}
}

// Announce enqueues a plain Text line on every session, used by
// shutdown/nuke announcements.
func (r *Registry) Announce(line string) {
	for _, s := range r.All() {
		s.stream.Enqueue(outstream.NewText(line))
	}
}
