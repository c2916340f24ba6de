package chat

import (
	"errors"
	"sync"
)

// ErrAlreadyOnline is returned when a username that already has a live
// session tries to register a second one.
var ErrAlreadyOnline = errors.New("user already online")

// Directory is the live-session map: authenticated username → connection.
// It routes private messages and guarantees at most one active session per
// username. It holds lookup-only references; sessions own their sockets and
// unregister themselves on teardown.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]Member
}

// NewDirectory returns an empty live-session directory.
func NewDirectory() *Directory {
	return &Directory{
		sessions: make(map[string]Member),
	}
}

// Register adds the member under its username. A second login for an
// already-online username is rejected rather than evicting the first
// session: eviction would let anyone with the password knock an active
// user offline.
func (d *Directory) Register(m Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, online := d.sessions[m.Username()]; online {
		return ErrAlreadyOnline
	}
	d.sessions[m.Username()] = m
	return nil
}

// Unregister removes the member, but only if it is still the registered
// session for that username.
func (d *Directory) Unregister(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.sessions[m.Username()]; ok && current == m {
		delete(d.sessions, m.Username())
	}
}

// Get returns the live session for a username.
func (d *Directory) Get(username string) (Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.sessions[username]
	return m, ok
}

// All returns a snapshot of every live session.
func (d *Directory) All() []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := make([]Member, 0, len(d.sessions))
	for _, m := range d.sessions {
		members = append(members, m)
	}
	return members
}

// Count returns the number of authenticated sessions.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// Usernames returns the names of everyone currently online.
func (d *Directory) Usernames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sessions))
	for name := range d.sessions {
		names = append(names, name)
	}
	return names
}
