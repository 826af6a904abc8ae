package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "http://keycloak.test/realms/blog-realm"

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		resp := map[string]interface{}{
			"keys": []map[string]interface{}{
				{
					"kty": "RSA",
					"use": "sig",
					"kid": kid,
					"alg": "RS256",
					"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func keycloakSetup(t *testing.T) (*rsa.PrivateKey, *KeycloakVerifier, *int32) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var hits int32
	server := jwksServer(t, "key-1", &key.PublicKey, &hits)
	t.Cleanup(server.Close)
	verifier := NewKeycloakVerifier(NewKeySet(server.URL), KeycloakOptions{Issuer: testIssuer})
	return key, verifier, &hits
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": testIssuer,
		"sub": "user-123",
		"aud": []string{"account"},
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

func TestKeycloakRealmRoles(t *testing.T) {
	key, verifier, _ := keycloakSetup(t)
	claims := baseClaims()
	claims["realm_access"] = map[string]any{"roles": []string{"author", "offline_access"}}
	claims["resource_access"] = map[string]any{"blog-admin": map[string]any{"roles": []string{"ignored"}}}

	got, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", claims))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject != "user-123" {
		t.Fatalf("subject = %q", got.Subject)
	}
	if len(got.Roles) != 2 || got.Roles[0] != "author" {
		t.Fatalf("roles = %v, want realm roles", got.Roles)
	}
}

func TestKeycloakClientRoles(t *testing.T) {
	key, verifier, _ := keycloakSetup(t)
	claims := baseClaims()
	claims["resource_access"] = map[string]any{
		"account":    map[string]any{"roles": []string{"manage-account"}},
		"blog-admin": map[string]any{"roles": []string{"author"}},
	}

	got, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", claims))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "author" {
		t.Fatalf("roles = %v, want [author]", got.Roles)
	}
}

func TestKeycloakNoRolesIsEmpty(t *testing.T) {
	key, verifier, _ := keycloakSetup(t)
	got, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", baseClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Roles == nil || len(got.Roles) != 0 {
		t.Fatalf("roles = %#v, want empty", got.Roles)
	}
}

func TestKeycloakRejectsUnsignedToken(t *testing.T) {
	// The legacy decode-only fallback accepted this token. It must not pass.
	_, verifier, _ := keycloakSetup(t)
	claims := baseClaims()
	claims["realm_access"] = map[string]any{"roles": []string{"author"}}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	forged := unsigned + "Zm9yZ2Vk"
	if _, err := verifier.Verify(context.Background(), forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for forged signature, got %v", err)
	}
}

func TestKeycloakRejectsOtherKey(t *testing.T) {
	_, verifier, _ := keycloakSetup(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	token := signRS256(t, other, "key-1", baseClaims())
	if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestKeycloakRejectsWrongIssuer(t *testing.T) {
	key, verifier, _ := keycloakSetup(t)
	claims := baseClaims()
	claims["iss"] = "http://evil.test/realms/blog-realm"
	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", claims)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestKeycloakRejectsExpired(t *testing.T) {
	key, verifier, _ := keycloakSetup(t)
	claims := baseClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", claims)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestKeycloakAudience(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	server := jwksServer(t, "key-1", &key.PublicKey, nil)
	defer server.Close()
	verifier := NewKeycloakVerifier(NewKeySet(server.URL), KeycloakOptions{Audience: "blog-backend"})

	claims := baseClaims()
	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", claims)); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
	claims["aud"] = "blog-backend"
	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", claims)); err != nil {
		t.Fatalf("expected single-string audience to verify: %v", err)
	}
}

func TestKeycloakMalformedTokens(t *testing.T) {
	_, verifier, hits := keycloakSetup(t)
	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"two segments", "abc.def", ErrTokenFormat},
		{"four segments", "a.b.c.d", ErrTokenFormat},
		{"bad base64", "eyJhbGciOiJSUzI1NiJ9.!!!.sig", ErrTokenDecode},
		{"padded base64", "eyJhbGciOiJSUzI1NiJ9." + base64.URLEncoding.EncodeToString([]byte(`{"a":1}`)) + ".sig", ErrTokenDecode},
		{"not json", "eyJhbGciOiJSUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".sig", ErrTokenParse},
	}
	for _, tc := range cases {
		if _, err := verifier.Verify(context.Background(), tc.token); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Fatalf("malformed tokens must not trigger key fetches, got %d", n)
	}
}

func TestKeySetCachesKeys(t *testing.T) {
	key, verifier, hits := keycloakSetup(t)
	for i := 0; i < 3; i++ {
		if _, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", baseClaims())); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("expected one JWKS fetch, got %d", n)
	}
}

func TestKeySetUsesStaleKeyWhenRefreshFails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	server := jwksServer(t, "key-1", &key.PublicKey, nil)
	keys := NewKeySet(server.URL, WithRefreshInterval(time.Nanosecond))
	if _, err := keys.Key(context.Background(), "key-1"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	server.Close()
	time.Sleep(time.Millisecond)
	if _, err := keys.Key(context.Background(), "key-1"); err != nil {
		t.Fatalf("expected stale key after failed refresh: %v", err)
	}
	if _, err := keys.Key(context.Background(), "unknown"); err == nil {
		t.Fatalf("expected error for unknown kid with unreachable JWKS")
	}
}

func TestKeySetBoundsFetchesForUnknownKids(t *testing.T) {
	key, verifier, hits := keycloakSetup(t)
	if _, err := verifier.Verify(context.Background(), signRS256(t, key, "key-1", baseClaims())); err != nil {
		t.Fatalf("verify: %v", err)
	}

	attacker, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		token := signRS256(t, attacker, fmt.Sprintf("bogus-%d", i), baseClaims())
		if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("unknown kids within the refetch floor must not fetch, got %d fetches", n)
	}
}

func TestKeySetCoalescesConcurrentFetches(t *testing.T) {
	key, verifier, hits := keycloakSetup(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		token := signRS256(t, key, fmt.Sprintf("bogus-%d", i), baseClaims())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = verifier.Verify(context.Background(), token)
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("expected a single JWKS fetch, got %d", n)
	}
}

func TestKeySetPicksUpRotatedKey(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var rotated atomic.Bool
	oldServer := jwksServer(t, "key-1", &oldKey.PublicKey, nil)
	defer oldServer.Close()
	newServer := jwksServer(t, "key-2", &newKey.PublicKey, nil)
	defer newServer.Close()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := oldServer.URL
		if rotated.Load() {
			target = newServer.URL
		}
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer server.Close()

	current := time.Now()
	keys := NewKeySet(server.URL)
	keys.now = func() time.Time { return current }

	if _, err := keys.Key(context.Background(), "key-1"); err != nil {
		t.Fatalf("initial key: %v", err)
	}
	rotated.Store(true)
	if _, err := keys.Key(context.Background(), "key-2"); err == nil {
		t.Fatal("rotated key must wait for the refetch floor")
	}
	current = current.Add(31 * time.Second)
	if _, err := keys.Key(context.Background(), "key-2"); err != nil {
		t.Fatalf("rotated key after floor: %v", err)
	}
}

func TestRolesForDefaultsToEmpty(t *testing.T) {
	c := &KeycloakClaims{ResourceAccess: map[string]RoleSet{"account": {Roles: []string{"x"}}}}
	if roles := c.RolesFor(DefaultClientID); roles == nil || len(roles) != 0 {
		t.Fatalf("roles = %#v, want empty", roles)
	}
	c = &KeycloakClaims{RealmAccess: &RoleSet{}}
	if roles := c.RolesFor(DefaultClientID); roles == nil || len(roles) != 0 {
		t.Fatalf("roles = %#v, want empty", roles)
	}
}
