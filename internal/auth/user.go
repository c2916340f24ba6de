package auth

import "time"

// Account represents a registered chat user.
// The username is the immutable key; everything else mutates under the
// store's per-account lock.
type Account struct {
	Username       string              // Unique username
	PasswordHash   string              // base64 PBKDF2-HMAC-SHA256 digest
	Salt           []byte              // Per-account random salt (16 bytes)
	FailedAttempts int                 // Consecutive failed logins
	LockoutUntil   time.Time           // Zero value = not locked
	JoinedRooms    map[string]struct{} // Room names the user has joined
	CreatedAt      time.Time           // Registration timestamp (server time)
	LastLogin      time.Time           // Last successful login
}

// Locked reports whether the account is currently under lockout.
func (a *Account) Locked(now time.Time) bool {
	return !a.LockoutUntil.IsZero() && now.Before(a.LockoutUntil)
}

// JoinRoom records room membership on the account.
func (a *Account) JoinRoom(room string) {
	if a.JoinedRooms == nil {
		a.JoinedRooms = make(map[string]struct{})
	}
	a.JoinedRooms[room] = struct{}{}
}

// LeaveRoom removes room membership from the account.
func (a *Account) LeaveRoom(room string) {
	delete(a.JoinedRooms, room)
}

// Rooms returns a copy of the joined room names.
func (a *Account) Rooms() []string {
	rooms := make([]string, 0, len(a.JoinedRooms))
	for name := range a.JoinedRooms {
		rooms = append(rooms, name)
	}
	return rooms
}

// Clone returns a deep copy safe to hand to a repository while the
// original keeps mutating under the store lock.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Salt = append([]byte(nil), a.Salt...)
	cp.JoinedRooms = make(map[string]struct{}, len(a.JoinedRooms))
	for name := range a.JoinedRooms {
		cp.JoinedRooms[name] = struct{}{}
	}
	return &cp
}
