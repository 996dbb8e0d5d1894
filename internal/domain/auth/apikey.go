// Package auth provides API key verification for admin and webhook surfaces.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for any key that fails verification. Callers
// get no detail about which check failed.
var ErrUnauthorized = errors.New("unauthorized")

// Scopes gating the protected API surfaces.
const (
	ScopeAdmin   = "admin"
	ScopeWebhook = "webhook"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants the given scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey computes the hex HMAC-SHA256 of a raw API key under the given
// pepper. Only this hash is ever stored or compared.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
