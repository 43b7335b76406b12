package servicekey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecretLength is the number of random bytes behind each key.
	SecretLength = 24
	// DisplayPrefixLength is how many secret characters are kept in clear for audit.
	DisplayPrefixLength = 8
)

// HashKey returns the hex SHA-256 of the full presented key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Generated carries a freshly minted key; Raw is shown once and never stored.
type Generated struct {
	Raw           string
	Hash          string
	DisplayPrefix string
}

func Generate(prefix string) (*Generated, error) {
	buf := make([]byte, SecretLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	raw := prefix + hex.EncodeToString(buf)
	return &Generated{
		Raw:           raw,
		Hash:          HashKey(raw),
		DisplayPrefix: raw[:len(prefix)+DisplayPrefixLength],
	}, nil
}

// WellFormed is a cheap syntactic screen run before hashing and lookup.
func WellFormed(raw, prefix string) bool {
	if !strings.HasPrefix(raw, prefix) {
		return false
	}
	secret := raw[len(prefix):]
	if len(secret) != SecretLength*2 {
		return false
	}
	for _, r := range secret {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
