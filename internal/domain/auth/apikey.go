package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned by a Repository when no active key matches.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity bound to a stored API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Role    Role
}

// Identity returns the caller identity the key resolves to.
func (k *APIKeyInfo) Identity() Identity {
	return Identity{UserID: k.UserID, Role: k.Role}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex-encoded HMAC-SHA256 of key under pepper. Stored
// key hashes are produced with this function.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
