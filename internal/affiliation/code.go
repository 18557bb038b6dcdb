package affiliation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	InviteCodePrefix = "bhi_"
	InviteCodeBytes  = 32
)

// GenerateInviteCode returns a new unguessable invite code and its hash.
// Only the hash is persisted; the plaintext code goes to the invitee.
func GenerateInviteCode() (code string, hash []byte, err error) {
	randomBytes := make([]byte, InviteCodeBytes)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	code = InviteCodePrefix + encoded
	hash = HashInviteCode(code)

	return code, hash, nil
}

// HashInviteCode returns the SHA-256 digest stored in place of the code.
func HashInviteCode(code string) []byte {
	h := sha256.Sum256([]byte(code))
	return h[:]
}

// ValidateInviteCodeFormat checks the code shape without touching the store.
func ValidateInviteCodeFormat(code string) bool {
	if len(code) < len(InviteCodePrefix) {
		return false
	}

	if code[:len(InviteCodePrefix)] != InviteCodePrefix {
		return false
	}

	encoded := code[len(InviteCodePrefix):]
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return len(decoded) == InviteCodeBytes
}
