package registry

import (
	"context"
	"strings"
	"sync"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

var dockerHubAliases = map[string]bool{
	"docker.io":            true,
	"index.docker.io":      true,
	"registry-1.docker.io": true,
}

// SameRegistry reports whether a and b name the same registry host.
// Docker Hub aliases compare equal and a scheme prefix is ignored.
func SameRegistry(a, b string) bool {
	a, b = canonicalHost(a), canonicalHost(b)
	if dockerHubAliases[a] && dockerHubAliases[b] {
		return true
	}
	return a == b
}

func canonicalHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	if i := strings.Index(h, "/"); i >= 0 {
		h = h[:i]
	}
	return h
}

// ScopedCredential returns cred for registry and defers to fallback for any
// other host. An empty registry matches every host.
func ScopedCredential(registry string, cred auth.Credential, fallback auth.CredentialFunc) auth.CredentialFunc {
	return func(ctx context.Context, hostport string) (auth.Credential, error) {
		if registry == "" || SameRegistry(registry, hostport) {
			return cred, nil
		}
		if fallback == nil {
			return auth.EmptyCredential, nil
		}
		return fallback(ctx, hostport)
	}
}

// DockerConfigCredential resolves credentials from the Docker config file and
// its credential helpers. The store is reopened on every lookup so a
// re-resolution sees credentials refreshed on disk.
func DockerConfigCredential() auth.CredentialFunc {
	return func(ctx context.Context, hostport string) (auth.Credential, error) {
		store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{})
		if err != nil {
			// A missing or unreadable config means anonymous access.
			return auth.EmptyCredential, nil
		}
		return credentials.Credential(store)(ctx, hostport)
	}
}

// credentialResolver memoizes credential lookups for one job.
type credentialResolver struct {
	base auth.CredentialFunc

	mu   sync.Mutex
	memo map[string]auth.Credential
}

func newCredentialResolver(base auth.CredentialFunc) *credentialResolver {
	return &credentialResolver{base: base, memo: make(map[string]auth.Credential)}
}

func (r *credentialResolver) Credential(ctx context.Context, hostport string) (auth.Credential, error) {
	if r.base == nil {
		return auth.EmptyCredential, nil
	}

	r.mu.Lock()
	cred, ok := r.memo[hostport]
	r.mu.Unlock()
	if ok {
		return cred, nil
	}

	cred, err := r.base(ctx, hostport)
	if err != nil {
		return auth.EmptyCredential, err
	}

	r.mu.Lock()
	r.memo[hostport] = cred
	r.mu.Unlock()
	return cred, nil
}

func (r *credentialResolver) reset() {
	r.mu.Lock()
	r.memo = make(map[string]auth.Credential)
	r.mu.Unlock()
}

// tokenCache is the job's auth.Cache. Reset drops every cached scheme and
// token so the next request performs a fresh challenge and exchange.
type tokenCache struct {
	mu    sync.RWMutex
	inner auth.Cache
}

func newTokenCache() *tokenCache {
	return &tokenCache{inner: auth.NewCache()}
}

func (c *tokenCache) current() auth.Cache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner
}

func (c *tokenCache) GetScheme(ctx context.Context, registry string) (auth.Scheme, error) {
	return c.current().GetScheme(ctx, registry)
}

func (c *tokenCache) GetToken(ctx context.Context, registry string, scheme auth.Scheme, key string) (string, error) {
	return c.current().GetToken(ctx, registry, scheme, key)
}

func (c *tokenCache) Set(
	ctx context.Context,
	registry string,
	scheme auth.Scheme,
	key string,
	fetch func(context.Context) (string, error),
) (string, error) {
	return c.current().Set(ctx, registry, scheme, key, fetch)
}

func (c *tokenCache) reset() {
	c.mu.Lock()
	c.inner = auth.NewCache()
	c.mu.Unlock()
}

var _ auth.Cache = (*tokenCache)(nil)
