// Package password hashes assessment access passwords.
//
// Hashes are stored as "<salt>:<key>" where salt is 16 random bytes in hex and
// key is the 64-byte scrypt derivation (N=16384, r=8, p=1) of the password with
// the salt's hex text, also in hex.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	saltLen = 16
	keyLen  = 64
	costN   = 16384
	costR   = 8
	costP   = 1
)

func Hash(password string) (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	salt := hex.EncodeToString(buf)
	key, err := derive(password, salt)
	if err != nil {
		return "", err
	}
	return salt + ":" + hex.EncodeToString(key), nil
}

// Verify reports whether password matches stored. Malformed hashes never match.
func Verify(password, stored string) bool {
	salt, want, ok := strings.Cut(stored, ":")
	if !ok || salt == "" || want == "" {
		return false
	}
	wantKey, err := hex.DecodeString(want)
	if err != nil || len(wantKey) != keyLen {
		return false
	}
	got, err := derive(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, wantKey) == 1
}

func derive(password, salt string) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), costN, costR, costP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("password: derive: %w", err)
	}
	return key, nil
}
