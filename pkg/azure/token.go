// Package azure acquires and caches the bearer tokens used to call the
// Fabric Livy and OneLake APIs.
package azure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/fabric-livy/pkg/credentials"
)

// Scope is the audience all tokens are requested for.
const Scope = "https://analysis.windows.net/powerbi/api/.default"

// refreshWindow is how close to expiry a cached token may get before it is
// replaced. A token inside the window is never handed out.
const refreshWindow = 5 * time.Minute

// Token is an opaque bearer credential with an absolute expiry.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
}

// expiresWithin reports whether the token expires within d of now.
func (t Token) expiresWithin(d time.Duration) bool {
	return time.Until(t.ExpiresOn) < d
}

// TokenProvider fetches a fresh token from an identity channel.
type TokenProvider interface {
	Token(ctx context.Context) (Token, error)
}

// NewProvider selects a token provider for the given profile.
func NewProvider(creds *credentials.Credentials) TokenProvider {
	if creds.UsesCLI() {
		return NewCLIProvider()
	}
	return NewClientSecretProvider(creds.TenantID, creds.ClientID, creds.ClientSecret)
}

// Cache holds the current token and refreshes it when it nears expiry.
// Safe for concurrent use.
type Cache struct {
	provider TokenProvider
	log      *slog.Logger

	mu    sync.Mutex
	token *Token
}

// NewCache creates a token cache backed by the given provider.
func NewCache(provider TokenProvider, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the cache logger.
func WithCacheLogger(log *slog.Logger) CacheOption {
	return func(c *Cache) { c.log = log }
}

// Token returns a valid bearer token, refreshing the cached one if it is
// missing or within the refresh window. Fetch failures propagate; retrying
// belongs to the callers driving the session, not to token acquisition.
func (c *Cache) Token(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && !c.token.expiresWithin(refreshWindow) {
		return *c.token, nil
	}

	if c.token != nil {
		c.log.Debug("token refresh necessary",
			"expires_in", time.Until(c.token.ExpiresOn).Round(time.Second))
	}

	token, err := c.provider.Token(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("fetching access token: %w", err)
	}
	c.token = &token
	return token, nil
}

// Headers returns the request headers carrying the bearer token.
func (c *Cache) Headers(ctx context.Context) (map[string]string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + token.AccessToken,
		"Content-Type":  "application/json",
	}, nil
}
