package chat

import (
	"fmt"
	"sync"

	"github.com/annel0/chat-server/internal/logging"
)

// GeneralRoom is implicitly available to every authenticated session and is
// the default target for unqualified sends.
const GeneralRoom = "GENERAL"

// Member is a live, authenticated connection able to receive chat lines.
// Rooms and the session directory hold members by username only; the
// session owns its socket and deregisters itself on teardown.
type Member interface {
	Username() string
	SendLine(line string) error
}

// Room is a named broadcast group with an explicit member set.
type Room struct {
	name    string
	mu      sync.RWMutex
	members map[string]Member // key = username
}

func newRoom(name string) *Room {
	return &Room{
		name:    name,
		members: make(map[string]Member),
	}
}

// Name returns the normalized room name.
func (r *Room) Name() string {
	return r.name
}

// Add inserts the member into the room. Idempotent.
func (r *Room) Add(m Member) {
	r.mu.Lock()
	r.members[m.Username()] = m
	r.mu.Unlock()
}

// Remove deletes the member from the room. Idempotent.
func (r *Room) Remove(username string) {
	r.mu.Lock()
	delete(r.members, username)
	r.mu.Unlock()
}

// Contains reports whether the username is currently a member.
func (r *Room) Contains(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[username]
	return ok
}

// Size returns the current member count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast delivers "[ROOM] sender: text" to every current member,
// including the sender if it is a member. Delivery is per-member
// independent: a failed write to one member is logged and skipped, never
// propagated.
func (r *Room) Broadcast(sender, text string) {
	line := fmt.Sprintf("[%s] %s: %s", r.name, sender, text)

	r.mu.RLock()
	targets := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	for _, m := range targets {
		if err := m.SendLine(line); err != nil {
			logging.Debug("Broadcast %s: delivery to %s failed: %v", r.name, m.Username(), err)
		}
	}
}
