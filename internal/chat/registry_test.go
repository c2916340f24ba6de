package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMember записывает доставленные строки; может имитировать мёртвое
// соединение через failSend.
type fakeMember struct {
	name     string
	mu       sync.Mutex
	lines    []string
	failSend bool
}

func newFakeMember(name string) *fakeMember {
	return &fakeMember{name: name}
}

func (m *fakeMember) Username() string { return m.name }

func (m *fakeMember) SendLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errors.New("connection reset")
	}
	m.lines = append(m.lines, line)
	return nil
}

func (m *fakeMember) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func TestNormalizeRoomName(t *testing.T) {
	assert.Equal(t, "GAMERS", NormalizeRoomName("gamers"))
	assert.Equal(t, "GAMERS", NormalizeRoomName("  GaMeRs  "))
	assert.Equal(t, "GENERAL", NormalizeRoomName("general"))
}

func TestGetOrCreateIdempotent(t *testing.T) {
	reg := NewRoomRegistry(NewDirectory())

	a := reg.GetOrCreate("gamers")
	b := reg.GetOrCreate("GAMERS")
	c := reg.GetOrCreate("  Gamers ")

	assert.Same(t, a, b)
	assert.Same(t, a, c)
	assert.Equal(t, "GAMERS", a.Name())
	assert.Equal(t, 1, reg.Count())
}

func TestJoinLeaveBroadcast(t *testing.T) {
	reg := NewRoomRegistry(NewDirectory())

	alice := newFakeMember("alice")
	bob := newFakeMember("bob")
	carol := newFakeMember("carol")

	reg.Join("gamers", alice)
	reg.Join("GAMERS", bob)
	reg.Join("MOVIES", carol)

	reg.Broadcast("gamers", "alice", "anyone up for a match?")

	// Сообщение форматируется и доходит до всех участников комнаты,
	// включая отправителя
	want := "[GAMERS] alice: anyone up for a match?"
	assert.Equal(t, []string{want}, alice.received())
	assert.Equal(t, []string{want}, bob.received())
	// Участник другой комнаты ничего не получает
	assert.Empty(t, carol.received())

	// После LEAVE доставка прекращается
	reg.Leave("gamers", "bob")
	reg.Broadcast("GAMERS", "alice", "still here?")
	assert.Len(t, alice.received(), 2)
	assert.Len(t, bob.received(), 1)
}

func TestBroadcastSkipsFailedMember(t *testing.T) {
	reg := NewRoomRegistry(NewDirectory())

	alice := newFakeMember("alice")
	dead := newFakeMember("dead")
	dead.failSend = true
	bob := newFakeMember("bob")

	reg.Join("general", alice)
	reg.Join("general", dead)
	reg.Join("general", bob)

	reg.Broadcast("general", "alice", "hello")

	// Ошибка доставки одному участнику не мешает остальным
	assert.Len(t, alice.received(), 1)
	assert.Len(t, bob.received(), 1)
	assert.Empty(t, dead.received())
}

func TestBroadcastGeneralFallback(t *testing.T) {
	dir := NewDirectory()
	reg := NewRoomRegistry(dir)

	alice := newFakeMember("alice")
	bob := newFakeMember("bob")
	require.NoError(t, dir.Register(alice))
	require.NoError(t, dir.Register(bob))

	// Объекта комнаты GENERAL ещё нет: рассылка идёт через каталог сессий
	reg.Broadcast("GENERAL", "alice", "hi all")
	want := "[GENERAL] alice: hi all"
	assert.Equal(t, []string{want}, alice.received())
	assert.Equal(t, []string{want}, bob.received())

	// Для прочих несуществующих комнат фоллбэка нет
	reg.Broadcast("NOWHERE", "alice", "lost")
	assert.Len(t, alice.received(), 1)
	assert.Len(t, bob.received(), 1)
}

func TestLeaveAll(t *testing.T) {
	reg := NewRoomRegistry(NewDirectory())

	alice := newFakeMember("alice")
	reg.Join("gamers", alice)
	reg.Join("movies", alice)
	reg.Join("general", alice)

	reg.LeaveAll("alice")

	for _, name := range []string{"GAMERS", "MOVIES", "GENERAL"} {
		room, ok := reg.Get(name)
		require.True(t, ok)
		assert.False(t, room.Contains("alice"), "комната %s должна быть пустой", name)
	}
}

func TestRoomNames(t *testing.T) {
	reg := NewRoomRegistry(NewDirectory())
	reg.GetOrCreate("gamers")
	reg.GetOrCreate("movies")

	assert.ElementsMatch(t, []string{"GAMERS", "MOVIES"}, reg.RoomNames())
}
