// Package auth resolves bearer tokens to user ids.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicespese/internal/cache"
	"voicespese/internal/core"
	"voicespese/internal/log"
	"voicespese/internal/storage"
)

const TokenPrefix = "vsp_"

type Store interface {
	CreateToken(ctx context.Context, hash, userID, label string, at time.Time) error
	TokenUser(ctx context.Context, hash string) (string, error)
	RevokeToken(ctx context.Context, hash string, at time.Time) error
}

// DefaultCacheTTL bounds how long a token revoked by another process keeps
// authenticating here.
const DefaultCacheTTL = 15 * time.Second

type TokenAuthenticator struct {
	store    Store
	cache    *cache.LRUCache[string]
	cacheTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*TokenAuthenticator)

// WithCacheTTL sets how long successful lookups are cached. Zero or less
// disables the cache so every call reaches the store.
func WithCacheTTL(ttl time.Duration) Option {
	return func(a *TokenAuthenticator) { a.cacheTTL = ttl }
}

func NewTokenAuthenticator(store Store, opts ...Option) *TokenAuthenticator {
	a := &TokenAuthenticator{
		store:    store,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
		logger:   log.WithComponent(log.ComponentAuth),
	}
	for _, opt := range opts {
		opt(a)
	}
	ttl := a.cacheTTL
	if ttl <= 0 {
		ttl = time.Second
	}
	a.cache = cache.NewLRUCache[string](1024, ttl)
	return a
}

// Cache exposes the lookup cache so it can be swept.
func (a *TokenAuthenticator) Cache() cache.Cleaner {
	return a.cache
}

// HashToken is the form tokens are stored and cached under.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate returns the user id owning token. Unknown, revoked and empty
// tokens are AuthRequired; store failures are StorageError.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", core.New(core.KindAuthRequired, "missing bearer token")
	}
	hash := HashToken(token)
	if a.cacheTTL > 0 {
		if userID, ok := a.cache.Get(hash); ok {
			return userID, nil
		}
	}

	userID, err := a.store.TokenUser(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.InfoContext(ctx, "Rejected unknown token")
		return "", core.New(core.KindAuthRequired, "invalid bearer token")
	}
	if err != nil {
		return "", core.Wrap(core.KindStorageError, "token lookup", err)
	}
	if a.cacheTTL > 0 {
		a.cache.Set(hash, userID)
	}
	return userID, nil
}

// Issue creates a token for userID. The plaintext is returned once and never
// stored.
func (a *TokenAuthenticator) Issue(ctx context.Context, userID, label string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", core.ErrEmptyUser
	}
	token := TokenPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := a.store.CreateToken(ctx, HashToken(token), userID, label, a.now()); err != nil {
		return "", core.Wrap(core.KindStorageError, "issue token", err)
	}
	a.logger.InfoContext(ctx, "Issued token", log.FieldUserID, userID, "label", label)
	return token, nil
}

// Revoke marks the token revoked and drops it from this authenticator's
// cache. Other processes holding a cached lookup, such as a running server
// when the CLI revokes, keep accepting the token until their cache entry
// expires after at most their cache TTL.
func (a *TokenAuthenticator) Revoke(ctx context.Context, token string) error {
	hash := HashToken(token)
	a.cache.Delete(hash)
	if err := a.store.RevokeToken(ctx, hash, a.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return core.Wrap(core.KindStorageError, "revoke token", err)
	}
	return nil
}

type userKey struct{}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the authenticated user id, or "" if none.
func UserFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}
