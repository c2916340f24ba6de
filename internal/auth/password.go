package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltLength is the per-account salt size in bytes.
	SaltLength = 16
	// KeyLength is the derived key size in bytes (256 bits).
	KeyLength = 32
	// DefaultIterations is the PBKDF2 iteration floor.
	DefaultIterations = 65536
)

// GenerateSalt returns SaltLength cryptographically random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}
	return salt, nil
}

// HashPassword derives a storage-safe digest of the password with the given
// salt using PBKDF2-HMAC-SHA256 and returns it base64-encoded.
func HashPassword(password string, salt []byte, iterations int) string {
	if iterations < DefaultIterations {
		iterations = DefaultIterations
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// CheckPassword re-derives the digest of the supplied password and compares
// it to the stored one in constant time.
func CheckPassword(password string, salt []byte, iterations int, storedHash string) bool {
	derived := HashPassword(password, salt, iterations)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedHash)) == 1
}
