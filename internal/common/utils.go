package common

import "strings"

// NormalizeEmail lower-cases and trims an email address so uniqueness checks
// and lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// WipeByteArray overwrites the contents of b with zeros. Used to drop
// plaintext passwords read from a terminal as soon as they are hashed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
