package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// accountTableVersion is bumped on any schema change to the stored records.
const accountTableVersion = 1

// accountRecord is the explicit on-disk schema for one account. It replaces
// opaque language-native serialization with a portable, versioned format.
type accountRecord struct {
	Username       string    `json:"username"`
	PasswordHash   string    `json:"password_hash"`
	Salt           string    `json:"salt"` // base64
	FailedAttempts int       `json:"failed_attempts"`
	LockoutUntil   time.Time `json:"lockout_until,omitempty"`
	JoinedRooms    []string  `json:"joined_rooms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastLogin      time.Time `json:"last_login"`
}

type accountTable struct {
	Version  int             `json:"version"`
	Accounts []accountRecord `json:"accounts"`
}

// FileUserRepo stores the account table in a single JSON file. Every Save
// rewrites the file atomically (temp file + rename), so a crash mid-write
// never leaves a truncated table behind.
type FileUserRepo struct {
	mu       sync.Mutex
	path     string
	accounts map[string]*Account
}

// NewFileUserRepo opens (or initialises) the account file at path.
func NewFileUserRepo(path string) (*FileUserRepo, error) {
	if path == "" {
		path = "accounts.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("account dir %s: %w", dir, err)
		}
	}

	repo := &FileUserRepo{
		path:     path,
		accounts: make(map[string]*Account),
	}
	if err := repo.loadFile(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileUserRepo) loadFile() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil // fresh installation
	}
	if err != nil {
		return fmt.Errorf("read account table %s: %w", r.path, err)
	}

	var table accountTable
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("decode account table %s: %w", r.path, err)
	}
	if table.Version != accountTableVersion {
		return fmt.Errorf("account table %s: unsupported version %d", r.path, table.Version)
	}

	for i := range table.Accounts {
		acc, err := recordToAccount(&table.Accounts[i])
		if err != nil {
			return fmt.Errorf("account table %s: %w", r.path, err)
		}
		r.accounts[acc.Username] = acc
	}
	return nil
}

// LoadAll returns copies of all stored accounts.
func (r *FileUserRepo) LoadAll() ([]*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]*Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		accounts = append(accounts, acc.Clone())
	}
	return accounts, nil
}

// Save replaces the stored account and flushes the whole table to disk.
func (r *FileUserRepo) Save(account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.Username] = account.Clone()
	return r.writeFile()
}

func (r *FileUserRepo) writeFile() error {
	table := accountTable{Version: accountTableVersion}
	for _, acc := range r.accounts {
		table.Accounts = append(table.Accounts, accountToRecord(acc))
	}
	// Stable order keeps the file diffable.
	sort.Slice(table.Accounts, func(i, j int) bool {
		return table.Accounts[i].Username < table.Accounts[j].Username
	})

	data, err := json.MarshalIndent(&table, "", "  ")
	if err != nil {
		return fmt.Errorf("encode account table: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write account table %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace account table %s: %w", r.path, err)
	}
	return nil
}

// Close is a no-op: Save already leaves the file consistent.
func (r *FileUserRepo) Close() error {
	return nil
}

func accountToRecord(acc *Account) accountRecord {
	rooms := acc.Rooms()
	sort.Strings(rooms)
	return accountRecord{
		Username:       acc.Username,
		PasswordHash:   acc.PasswordHash,
		Salt:           base64.StdEncoding.EncodeToString(acc.Salt),
		FailedAttempts: acc.FailedAttempts,
		LockoutUntil:   acc.LockoutUntil,
		JoinedRooms:    rooms,
		CreatedAt:      acc.CreatedAt,
		LastLogin:      acc.LastLogin,
	}
}

func recordToAccount(rec *accountRecord) (*Account, error) {
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return nil, fmt.Errorf("account %s: bad salt encoding: %w", rec.Username, err)
	}
	acc := &Account{
		Username:       rec.Username,
		PasswordHash:   rec.PasswordHash,
		Salt:           salt,
		FailedAttempts: rec.FailedAttempts,
		LockoutUntil:   rec.LockoutUntil,
		JoinedRooms:    make(map[string]struct{}, len(rec.JoinedRooms)),
		CreatedAt:      rec.CreatedAt,
		LastLogin:      rec.LastLogin,
	}
	for _, room := range rec.JoinedRooms {
		acc.JoinedRooms[room] = struct{}{}
	}
	return acc, nil
}
