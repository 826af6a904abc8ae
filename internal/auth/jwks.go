package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var errUnknownKey = errors.New("jwks: unknown key id")

// KeySet holds the realm's RSA signing keys, indexed by kid. Keys are
// refetched once they are older than maxAge, or when a token names a kid we
// do not hold. Fetches are coalesced and never start more than once per
// minRefetch, so tokens with made-up kids cannot drive traffic to the
// identity provider.
type KeySet struct {
	url        string
	client     *http.Client
	maxAge     time.Duration
	minRefetch time.Duration
	now        func() time.Time

	fetches singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	attempted time.Time
}

type KeySetOption func(*KeySet)

func WithHTTPClient(c *http.Client) KeySetOption {
	return func(k *KeySet) { k.client = c }
}

// WithRefreshInterval sets how long fetched keys are trusted. Default: 1 hour.
func WithRefreshInterval(d time.Duration) KeySetOption {
	return func(k *KeySet) { k.maxAge = d }
}

// WithMinRefetchInterval sets the floor between two fetch attempts.
// Default: 30 seconds.
func WithMinRefetchInterval(d time.Duration) KeySetOption {
	return func(k *KeySet) { k.minRefetch = d }
}

func NewKeySet(url string, opts ...KeySetOption) *KeySet {
	k := &KeySet{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxAge:     time.Hour,
		minRefetch: 30 * time.Second,
		now:        time.Now,
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Key returns the public key for kid. When the set is stale or kid is
// unknown it refetches, subject to the refetch floor. A cached key is
// still served if the refetch fails. An empty kid matches a set holding
// exactly one key.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, fresh, mayFetch := k.lookup(kid)
	if key != nil && fresh {
		return key, nil
	}
	if !mayFetch {
		if key != nil {
			return key, nil
		}
		return nil, fmt.Errorf("%w %q", errUnknownKey, kid)
	}

	_, err, _ := k.fetches.Do(k.url, func() (interface{}, error) {
		return nil, k.fetch(ctx)
	})

	if again, _, _ := k.lookup(kid); again != nil {
		return again, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w %q", errUnknownKey, kid)
}

func (k *KeySet) lookup(kid string) (key *rsa.PublicKey, fresh, mayFetch bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	now := k.now()
	key = k.keys[kid]
	if key == nil && kid == "" && len(k.keys) == 1 {
		for _, only := range k.keys {
			key = only
		}
	}
	fresh = !k.fetchedAt.IsZero() && now.Sub(k.fetchedAt) <= k.maxAge
	mayFetch = k.attempted.IsZero() || now.Sub(k.attempted) >= k.minRefetch
	return key, fresh, mayFetch
}

func (k *KeySet) fetch(ctx context.Context) error {
	k.mu.Lock()
	now := k.now()
	if !k.attempted.IsZero() && now.Sub(k.attempted) < k.minRefetch {
		// another caller fetched after our lookup
		k.mu.Unlock()
		return nil
	}
	k.attempted = now
	k.mu.Unlock()

	keys, err := fetchSigningKeys(ctx, k.client, k.url)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.keys = keys
	k.fetchedAt = k.now()
	k.mu.Unlock()
	return nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// fetchSigningKeys downloads the JWKS document and keeps its RSA signature keys.
func fetchSigningKeys(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks: get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks: get %s: status %d", url, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("jwks: decode %s: %w", url, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := rsaKey(jwk.N, jwk.E)
		if err != nil {
			continue
		}
		keys[jwk.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks: %s has no RSA signing keys", url)
	}
	return keys, nil
}

func rsaKey(modulus, exponent string) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
