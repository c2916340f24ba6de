package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,}$`)

// ValidUsername reports whether the username matches the allowed pattern:
// letters, digits, dot, underscore, hyphen, at least 3 characters.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidPassword enforces the complexity policy: at least 12 characters with
// at least one uppercase, one lowercase, one digit and one character that is
// neither letter nor digit.
func ValidPassword(password string) bool {
	// Длина считается в символах, не в байтах: многобайтовый пароль из
	// шести рун не должен проходить порог.
	if utf8.RuneCountInString(password) < 12 {
		return false
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, c := range password {
		if unicode.IsUpper(c) {
			hasUpper = true
		}
		if unicode.IsLower(c) {
			hasLower = true
		}
		if unicode.IsDigit(c) {
			hasDigit = true
		}
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			hasSpecial = true
		}
	}

	return hasUpper && hasLower && hasDigit && hasSpecial
}

// SanitizeInput strips control characters and surrounding whitespace from a
// raw client line.
func SanitizeInput(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}
