package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"session-service/internal/apperrors"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Resolver maps an anonymous participant token to a fingerprint that is stable
// within one session and unlinkable across sessions.
type Resolver struct {
	key []byte
}

func NewResolver(secret string) *Resolver {
	sum := blake2b.Sum256([]byte(secret))
	return &Resolver{key: sum[:]}
}

func (r *Resolver) Fingerprint(sessionID, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.Validation("participant token is required")
	}
	if sessionID == "" {
		return "", apperrors.Validation("session id is required")
	}

	h, err := blake2b.New256(r.key)
	if err != nil {
		return "", fmt.Errorf("failed to init fingerprint hash: %w", err)
	}
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewToken issues a fresh opaque participant token.
func NewToken() string {
	return uuid.NewString()
}
