package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/annel0/chat-server/internal/logging"
)

// RoomRegistry owns the set of chat rooms. Rooms are created lazily on
// first JOIN and never destroyed; an empty room is cheap. Individual rooms
// carry their own locks, so traffic in unrelated rooms never contends.
type RoomRegistry struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	directory *Directory
}

// NewRoomRegistry creates an empty registry. The directory backs the
// GENERAL fallback fan-out.
func NewRoomRegistry(directory *Directory) *RoomRegistry {
	return &RoomRegistry{
		rooms:     make(map[string]*Room),
		directory: directory,
	}
}

// NormalizeRoomName upper-cases and trims a client-supplied room name.
func NormalizeRoomName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// GetOrCreate returns the room with the given name, creating it if needed.
// Idempotent and safe for concurrent use.
func (reg *RoomRegistry) GetOrCreate(name string) *Room {
	name = NormalizeRoomName(name)

	reg.mu.RLock()
	room, ok := reg.rooms[name]
	reg.mu.RUnlock()
	if ok {
		return room
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok = reg.rooms[name]; ok {
		return room
	}
	room = newRoom(name)
	reg.rooms[name] = room
	logging.Debug("Создана комната %s", name)
	return room
}

// Get returns the room if it exists.
func (reg *RoomRegistry) Get(name string) (*Room, bool) {
	name = NormalizeRoomName(name)
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[name]
	return room, ok
}

// Join adds the member to the room, creating the room on first join.
func (reg *RoomRegistry) Join(name string, m Member) *Room {
	room := reg.GetOrCreate(name)
	room.Add(m)
	return room
}

// Leave removes the member from the room, if the room exists.
func (reg *RoomRegistry) Leave(name string, username string) {
	if room, ok := reg.Get(name); ok {
		room.Remove(username)
	}
}

// LeaveAll removes the member from every room. Called on session teardown
// so no room keeps a dangling reference to a dead connection.
func (reg *RoomRegistry) LeaveAll(username string) {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	for _, room := range rooms {
		room.Remove(username)
	}
}

// Broadcast fans out to the room's members. GENERAL is special: when no
// room object exists yet, the message still reaches every authenticated
// session via the live-session directory.
func (reg *RoomRegistry) Broadcast(name, sender, text string) {
	name = NormalizeRoomName(name)

	if room, ok := reg.Get(name); ok {
		room.Broadcast(sender, text)
		return
	}

	if name == GeneralRoom && reg.directory != nil {
		line := fmt.Sprintf("[%s] %s: %s", GeneralRoom, sender, text)
		for _, m := range reg.directory.All() {
			if err := m.SendLine(line); err != nil {
				logging.Debug("Broadcast GENERAL: delivery to %s failed: %v", m.Username(), err)
			}
		}
	}
}

// Count returns the number of rooms that currently exist.
func (reg *RoomRegistry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// RoomNames returns the names of all existing rooms.
func (reg *RoomRegistry) RoomNames() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.rooms))
	for name := range reg.rooms {
		names = append(names, name)
	}
	return names
}
