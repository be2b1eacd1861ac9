package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/burgershop/order-service/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key. WebSocket clients that cannot
// set headers pass it as a query parameter of the same name.
const APIKeyHeader = "api_key"

// Authenticator resolves callers from HMAC-SHA256 hashed API keys.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

func presentedKey(r *http.Request, allowQuery bool) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if allowQuery {
		return r.URL.Query().Get(APIKeyHeader)
	}
	return ""
}

// Resolve returns the identity bound to key.
func (a *Authenticator) Resolve(r *http.Request, key string) (auth.Identity, error) {
	if key == "" {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	hexHash := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			return auth.Identity{}, auth.ErrUnauthenticated
		}
		return auth.Identity{}, errors.Wrap(err, "resolve api key")
	}

	// The store looked the key up by hash; compare again in constant time in
	// case it matched loosely.
	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return info.Identity(), nil
}

// Middleware rejects requests without a valid API key and puts the resolved
// identity on the context. allowQuery also accepts the key as a query
// parameter.
func (a *Authenticator) Middleware(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Resolve(r, presentedKey(r, allowQuery))
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			ctx := auth.WithIdentity(r.Context(), id)
			ctx = zctx.With(ctx, zap.String("caller_id", id.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitKey keys rate limiting by the hash of the presented API key, or
// "" when none was presented.
func (a *Authenticator) RateLimitKey(r *http.Request) string {
	key := presentedKey(r, true)
	if key == "" {
		return ""
	}
	return "key:" + auth.HashKey(a.pepper, key)
}

// identity returns the caller set by Authenticator.Middleware. Routes are
// only mounted behind it, so the zero identity means no access.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
