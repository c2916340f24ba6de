package auth

import "sync"

// MemoryUserRepo is a threadsafe in-memory repository useful for tests and
// servers that do not need durability across restarts.
type MemoryUserRepo struct {
	mu       sync.RWMutex
	accounts map[string]*Account // key = username
}

// NewMemoryUserRepo returns an empty in-memory repository.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		accounts: make(map[string]*Account),
	}
}

// LoadAll returns copies of all stored accounts.
func (r *MemoryUserRepo) LoadAll() ([]*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		accounts = append(accounts, acc.Clone())
	}
	return accounts, nil
}

// Save stores a copy of the account, replacing any previous version.
func (r *MemoryUserRepo) Save(account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.Username] = account.Clone()
	return nil
}

// Close is a no-op for the in-memory backend.
func (r *MemoryUserRepo) Close() error {
	return nil
}
