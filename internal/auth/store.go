package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/annel0/chat-server/internal/logging"
)

// StorePolicy groups the tunable security parameters of the account store.
type StorePolicy struct {
	MaxLoginAttempts int           // Failed logins before lockout
	LockoutDuration  time.Duration // How long a locked account stays locked
	Iterations       int           // PBKDF2 iteration count
}

// DefaultStorePolicy matches the documented protocol behaviour: three
// strikes, fifteen minutes.
func DefaultStorePolicy() StorePolicy {
	return StorePolicy{
		MaxLoginAttempts: 3,
		LockoutDuration:  15 * time.Minute,
		Iterations:       DefaultIterations,
	}
}

// accountEntry wraps an account with its own lock so that concurrent
// authentication attempts against different accounts never contend.
type accountEntry struct {
	mu  sync.Mutex
	acc *Account
}

// AccountStore owns the credential table: registration, authentication,
// lockout policy and write-through persistence. Registrations take the
// table-level write lock; everything else locks only the affected account.
type AccountStore struct {
	mu      sync.RWMutex
	entries map[string]*accountEntry
	repo    UserRepository
	policy  StorePolicy
	now     func() time.Time // replaceable in tests
}

// NewAccountStore loads the account table from the repository. A load
// failure is logged and the store starts empty; the server keeps operating
// in-memory.
func NewAccountStore(repo UserRepository, policy StorePolicy) *AccountStore {
	if policy.MaxLoginAttempts <= 0 {
		policy.MaxLoginAttempts = 3
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = 15 * time.Minute
	}
	if policy.Iterations < DefaultIterations {
		policy.Iterations = DefaultIterations
	}

	store := &AccountStore{
		entries: make(map[string]*accountEntry),
		repo:    repo,
		policy:  policy,
		now:     time.Now,
	}

	accounts, err := repo.LoadAll()
	if err != nil {
		logging.Error("Не удалось загрузить таблицу аккаунтов: %v", err)
		return store
	}
	for _, acc := range accounts {
		store.entries[acc.Username] = &accountEntry{acc: acc}
	}
	logging.Info("Загружено учётных записей: %d", len(accounts))
	return store
}

// Register validates the credentials, creates the account and persists it.
// It returns the registered username or one of ErrInvalidUsername,
// ErrUserExists, ErrWeakPassword.
func (s *AccountStore) Register(username, password string) (string, error) {
	if !ValidUsername(username) {
		return "", ErrInvalidUsername
	}
	if !ValidPassword(password) {
		return "", ErrWeakPassword
	}

	salt, err := GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("register %s: %w", username, err)
	}
	hash := HashPassword(password, salt, s.policy.Iterations)

	now := s.now()
	acc := &Account{
		Username:     username,
		PasswordHash: hash,
		Salt:         salt,
		JoinedRooms:  make(map[string]struct{}),
		CreatedAt:    now,
		LastLogin:    now,
	}

	// The entry is published locked so that no login can race ahead of the
	// initial persistence of the new account.
	entry := &accountEntry{acc: acc}
	entry.mu.Lock()

	s.mu.Lock()
	if _, exists := s.entries[username]; exists {
		s.mu.Unlock()
		entry.mu.Unlock()
		return "", ErrUserExists
	}
	s.entries[username] = entry
	s.mu.Unlock()

	s.persist(acc)
	entry.mu.Unlock()

	logging.SecurityEvent("REGISTER", username, "account created")
	return username, nil
}

// Authenticate verifies the password against the stored hash. It fails
// without touching the hash when the account is absent or locked. Lockout
// bookkeeping happens atomically relative to concurrent attempts against
// the same account.
func (s *AccountStore) Authenticate(username, password string) bool {
	entry := s.lookup(username)
	if entry == nil {
		logging.SecurityEvent("LOGIN_FAILED", username, "unknown account")
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	acc := entry.acc
	now := s.now()
	if acc.Locked(now) {
		logging.SecurityEvent("LOGIN_FAILED", username, "account locked")
		return false
	}

	if CheckPassword(password, acc.Salt, s.policy.Iterations, acc.PasswordHash) {
		acc.FailedAttempts = 0
		acc.LockoutUntil = time.Time{}
		acc.LastLogin = now
		s.persist(acc)
		logging.SecurityEvent("LOGIN_OK", username, "")
		return true
	}

	acc.FailedAttempts++
	if acc.FailedAttempts >= s.policy.MaxLoginAttempts {
		acc.LockoutUntil = now.Add(s.policy.LockoutDuration)
		logging.SecurityEvent("LOCKOUT", username,
			fmt.Sprintf("until %s", acc.LockoutUntil.Format(time.RFC3339)))
	} else {
		logging.SecurityEvent("LOGIN_FAILED", username,
			fmt.Sprintf("attempt %d", acc.FailedAttempts))
	}
	s.persist(acc)
	return false
}

// JoinRoom records room membership on the account and persists it.
func (s *AccountStore) JoinRoom(username, room string) {
	entry := s.lookup(username)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	entry.acc.JoinRoom(room)
	s.persist(entry.acc)
	entry.mu.Unlock()
}

// LeaveRoom removes room membership from the account and persists it.
func (s *AccountStore) LeaveRoom(username, room string) {
	entry := s.lookup(username)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	entry.acc.LeaveRoom(room)
	s.persist(entry.acc)
	entry.mu.Unlock()
}

// Get returns a snapshot of the account, or ErrUserNotFound.
func (s *AccountStore) Get(username string) (*Account, error) {
	entry := s.lookup(username)
	if entry == nil {
		return nil, ErrUserNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.acc.Clone(), nil
}

// Count returns the number of registered accounts.
func (s *AccountStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Flush persists every account. Called on shutdown.
func (s *AccountStore) Flush() {
	s.mu.RLock()
	entries := make([]*accountEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	for _, entry := range entries {
		entry.mu.Lock()
		s.persist(entry.acc)
		entry.mu.Unlock()
	}
}

func (s *AccountStore) lookup(username string) *accountEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[username]
}

// persist flushes one account to the repository. A save failure is logged
// and never fails the calling operation: the in-memory table stays the
// source of truth.
func (s *AccountStore) persist(acc *Account) {
	if err := s.repo.Save(acc); err != nil {
		logging.Error("Не удалось сохранить аккаунт %s: %v", acc.Username, err)
	}
}
