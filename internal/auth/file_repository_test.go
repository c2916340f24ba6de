package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRepoRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")

	repo, err := NewFileUserRepo(path)
	require.NoError(t, err)

	salt := []byte("0123456789abcdef")
	acc := &Account{
		Username:       "alice",
		PasswordHash:   HashPassword("Str0ngP@ssw0rd!", salt, DefaultIterations),
		Salt:           salt,
		FailedAttempts: 2,
		LockoutUntil:   time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		JoinedRooms:    map[string]struct{}{"GENERAL": {}, "GAMERS": {}},
		CreatedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		LastLogin:      time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(acc))
	require.NoError(t, repo.Close())

	// Повторное открытие должно вернуть аккаунт без потерь
	reopened, err := NewFileUserRepo(path)
	require.NoError(t, err)
	accounts, err := reopened.LoadAll()
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	got := accounts[0]
	assert.Equal(t, acc.Username, got.Username)
	assert.Equal(t, acc.PasswordHash, got.PasswordHash)
	assert.Equal(t, acc.Salt, got.Salt)
	assert.Equal(t, acc.FailedAttempts, got.FailedAttempts)
	assert.True(t, acc.LockoutUntil.Equal(got.LockoutUntil))
	assert.ElementsMatch(t, []string{"GENERAL", "GAMERS"}, got.Rooms())
	assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, acc.LastLogin.Equal(got.LastLogin))
}

func TestFileRepoFreshInstall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "accounts.json")

	repo, err := NewFileUserRepo(path)
	require.NoError(t, err)

	accounts, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestFileRepoVersionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"accounts":[]}`), 0600))

	_, err := NewFileUserRepo(path)
	assert.ErrorContains(t, err, "unsupported version")
}

func TestFileRepoCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileUserRepo(path)
	assert.Error(t, err)
}

func TestFileRepoStableOnDiskFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")

	repo, err := NewFileUserRepo(path)
	require.NoError(t, err)

	salt := []byte("0123456789abcdef")
	for _, name := range []string{"charlie", "alice", "bob"} {
		require.NoError(t, repo.Save(&Account{
			Username:     name,
			PasswordHash: "hash-" + name,
			Salt:         salt,
			JoinedRooms:  make(map[string]struct{}),
		}))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var table struct {
		Version  int `json:"version"`
		Accounts []struct {
			Username string `json:"username"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(data, &table))
	assert.Equal(t, 1, table.Version)
	require.Len(t, table.Accounts, 3)
	// Записи отсортированы по имени, файл пригоден для diff
	assert.Equal(t, "alice", table.Accounts[0].Username)
	assert.Equal(t, "bob", table.Accounts[1].Username)
	assert.Equal(t, "charlie", table.Accounts[2].Username)
}
