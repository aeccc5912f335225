package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const sessionIDBytes = 4

// NewSessionID returns 8 lowercase hex chars.
func NewSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("cannot read random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// IsSessionID reports whether s looks like a value returned by NewSessionID.
func IsSessionID(s string) bool {
	if len(s) != sessionIDBytes*2 {
		return false
	}

	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
