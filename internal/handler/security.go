package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/vendora/commerce-core/internal/domain/auth"
)

// APIKeyHeader carries the raw API key on admin and webhook requests.
const APIKeyHeader = "X-Api-Key"

// APIKeyAuth authenticates requests via HMAC-SHA256 hashed API keys and
// requires the given scope. The raw key never touches storage; only its
// hash under the server pepper is looked up.
func APIKeyAuth(apikeys auth.Repository, pepper []byte, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			hexHash := auth.HashKey(pepper, key)
			info, err := apikeys.FindByHash(r.Context(), hexHash)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			// Constant-time comparison guards against timing side-channels
			// in case the repository returns a stale or wrong row.
			computed, err := hex.DecodeString(hexHash)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if subtle.ConstantTimeCompare(computed, stored) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
