// ABOUTME: Verification key sources for signed tokens
// ABOUTME: StaticKeySet holds an HMAC secret, JWKSKeySet caches a remote JSON Web Key Set

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownKey is returned when no key matches the token's kid.
var ErrUnknownKey = errors.New("unknown signing key")

// KeySet resolves the key used to verify a token signature.
type KeySet interface {
	Key(ctx context.Context, kid string) (any, error)
	// Algorithms lists the JWS algorithms this key set accepts.
	Algorithms() []string
}

// StaticKeySet verifies HS256/384/512 tokens with one shared secret.
type StaticKeySet struct {
	secret []byte
}

// NewStaticKeySet creates a key set for the given HMAC secret.
func NewStaticKeySet(secret []byte) *StaticKeySet {
	return &StaticKeySet{secret: secret}
}

// Key returns the secret regardless of kid.
func (s *StaticKeySet) Key(ctx context.Context, kid string) (any, error) {
	return s.secret, nil
}

// Algorithms lists the accepted HMAC algorithms.
func (s *StaticKeySet) Algorithms() []string {
	return []string{"HS256", "HS384", "HS512"}
}

const (
	jwksMaxBody = 1 << 20
	// minimum gap between fetches triggered by unknown kids
	jwksMinRefetch = 30 * time.Second
)

// JWKSKeySet fetches public keys from an identity provider's JWKS endpoint.
// Keys are cached for the refresh interval. A token carrying an unknown kid
// triggers an early refetch, at most once per jwksMinRefetch.
type JWKSKeySet struct {
	url        string
	client     *http.Client
	refresh    time.Duration
	minRefetch time.Duration
	logger     *slog.Logger
	group      singleflight.Group

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
	lastFetch time.Time
}

// NewJWKSKeySet creates a key set backed by url. A nil client uses a client
// with a 5 second timeout.
func NewJWKSKeySet(url string, refresh time.Duration, client *http.Client, logger *slog.Logger) *JWKSKeySet {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if refresh <= 0 {
		refresh = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JWKSKeySet{
		url:        url,
		client:     client,
		refresh:    refresh,
		minRefetch: jwksMinRefetch,
		logger:     logger.With("component", "jwks"),
	}
}

// Algorithms lists the accepted asymmetric algorithms.
func (k *JWKSKeySet) Algorithms() []string {
	return []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}
}

// Key returns the public key for kid, fetching the key set when the cache
// is stale or the kid is unknown.
func (k *JWKSKeySet) Key(ctx context.Context, kid string) (any, error) {
	k.mu.RLock()
	key, found := k.lookup(kid)
	stale := k.fetchedAt.IsZero() || time.Since(k.fetchedAt) > k.refresh
	canRefetch := time.Since(k.lastFetch) >= k.minRefetch
	k.mu.RUnlock()

	if found && !stale {
		return key, nil
	}
	if !stale && !canRefetch {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}

	if err := k.fetch(ctx); err != nil {
		if found {
			k.logger.Warn("JWKS refresh failed, using cached key", "error", err)
			return key, nil
		}
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, found := k.lookup(kid); found {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
}

// lookup must be called with mu held. Without a kid the set must hold
// exactly one signing key.
func (k *JWKSKeySet) lookup(kid string) (any, bool) {
	if kid == "" {
		var only *jose.JSONWebKey
		for i := range k.keys.Keys {
			if !signingKey(k.keys.Keys[i]) {
				continue
			}
			if only != nil {
				return nil, false
			}
			only = &k.keys.Keys[i]
		}
		if only == nil {
			return nil, false
		}
		return only.Key, true
	}
	for _, jwk := range k.keys.Key(kid) {
		if signingKey(jwk) {
			return jwk.Key, true
		}
	}
	return nil, false
}

func signingKey(jwk jose.JSONWebKey) bool {
	return jwk.Use == "" || jwk.Use == "sig"
}

// fetch downloads the key set. Concurrent callers share one request.
func (k *JWKSKeySet) fetch(ctx context.Context) error {
	_, err, _ := k.group.Do("jwks", func() (any, error) {
		set, err := k.download(ctx)

		k.mu.Lock()
		defer k.mu.Unlock()
		k.lastFetch = time.Now()
		if err != nil {
			return nil, err
		}
		k.keys = set
		k.fetchedAt = k.lastFetch
		k.logger.Debug("JWKS refreshed", "keys", len(set.Keys))
		return nil, nil
	})
	return err
}

func (k *JWKSKeySet) download(ctx context.Context) (jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return set, fmt.Errorf("building JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return set, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return set, fmt.Errorf("fetching JWKS: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, jwksMaxBody)).Decode(&set); err != nil {
		return set, fmt.Errorf("decoding JWKS: %w", err)
	}
	return set, nil
}
