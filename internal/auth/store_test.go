package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*AccountStore, *MemoryUserRepo) {
	t.Helper()
	repo := NewMemoryUserRepo()
	store := NewAccountStore(repo, DefaultStorePolicy())
	return store, repo
}

func TestRegisterAndAuthenticate(t *testing.T) {
	store, repo := newTestStore(t)

	username, err := store.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	// Аккаунт должен быть сохранён до первого входа
	saved, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "alice", saved[0].Username)
	assert.Len(t, saved[0].Salt, SaltLength)
	assert.NotEmpty(t, saved[0].PasswordHash)

	assert.True(t, store.Authenticate("alice", "Str0ngP@ssw0rd!"))
	assert.False(t, store.Authenticate("alice", "wrong-password"))
	assert.False(t, store.Authenticate("nobody", "Str0ngP@ssw0rd!"))
}

func TestRegisterValidation(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Register("al", "Str0ngP@ssw0rd!")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = store.Register("bad name", "Str0ngP@ssw0rd!")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = store.Register("alice", "weak")
	assert.ErrorIs(t, err, ErrWeakPassword)

	// Ни одна из неудачных попыток не должна создать аккаунт
	assert.Equal(t, 0, store.Count())

	_, err = store.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)
	_, err = store.Register("alice", "An0therP@ssw0rd!")
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, 1, store.Count())
}

func TestLockoutAfterThreeFailures(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, store.Authenticate("alice", "wrong-password"))
	}

	// Верный пароль в течение 15 минут всё ещё отклоняется
	now = now.Add(14 * time.Minute)
	assert.False(t, store.Authenticate("alice", "Str0ngP@ssw0rd!"))

	// После истечения блокировки верный пароль проходит и сбрасывает счётчик
	now = now.Add(2 * time.Minute)
	assert.True(t, store.Authenticate("alice", "Str0ngP@ssw0rd!"))

	acc, err := store.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.FailedAttempts)
	assert.True(t, acc.LockoutUntil.IsZero())
}

func TestLockoutCountsResetOnSuccess(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Register("bob", "Str0ngP@ssw0rd!")
	require.NoError(t, err)

	// Две неудачи, затем успех: счётчик обнуляется, блокировки нет
	assert.False(t, store.Authenticate("bob", "wrong1-P@ssw0rd"))
	assert.False(t, store.Authenticate("bob", "wrong2-P@ssw0rd"))
	assert.True(t, store.Authenticate("bob", "Str0ngP@ssw0rd!"))

	// Снова две неудачи — третьей не было, вход разрешён
	assert.False(t, store.Authenticate("bob", "wrong3-P@ssw0rd"))
	assert.False(t, store.Authenticate("bob", "wrong4-P@ssw0rd"))
	assert.True(t, store.Authenticate("bob", "Str0ngP@ssw0rd!"))
}

func TestLockoutPersisted(t *testing.T) {
	store, repo := newTestStore(t)

	_, err := store.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		store.Authenticate("alice", "wrong-password")
	}

	saved, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 3, saved[0].FailedAttempts)
	assert.False(t, saved[0].LockoutUntil.IsZero())

	// Новый store поверх того же репозитория видит блокировку
	store2 := NewAccountStore(repo, DefaultStorePolicy())
	assert.False(t, store2.Authenticate("alice", "Str0ngP@ssw0rd!"))
}

func TestJoinLeaveRoomPersisted(t *testing.T) {
	store, repo := newTestStore(t)

	_, err := store.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)

	store.JoinRoom("alice", "GAMERS")
	store.JoinRoom("alice", "GENERAL")

	saved, err := repo.LoadAll()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.ElementsMatch(t, []string{"GAMERS", "GENERAL"}, saved[0].Rooms())

	store.LeaveRoom("alice", "GAMERS")
	acc, err := store.Get("alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"GENERAL"}, acc.Rooms())
}

func TestConcurrentAuthenticateSameAccount(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Register("alice", "Str0ngP@ssw0rd!")
	require.NoError(t, err)

	// Конкурентные неверные попытки: счётчик не должен потерять инкременты
	done := make(chan bool, 6)
	for i := 0; i < 6; i++ {
		go func() {
			done <- store.Authenticate("alice", "wrong-password")
		}()
	}
	for i := 0; i < 6; i++ {
		assert.False(t, <-done)
	}

	acc, err := store.Get("alice")
	require.NoError(t, err)
	// После третьей неудачи аккаунт заблокирован, дальнейшие попытки не
	// увеличивают счётчик
	assert.Equal(t, 3, acc.FailedAttempts)
	assert.False(t, acc.LockoutUntil.IsZero())
}
