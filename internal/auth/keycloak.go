package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultClientID is the Keycloak client whose resource roles are consulted
// when a token carries no realm roles.
const DefaultClientID = "blog-admin"

// RoleSet is the {"roles": [...]} object Keycloak nests under realm_access
// and under each client in resource_access.
type RoleSet struct {
	Roles []string `json:"roles"`
}

// KeycloakClaims is the payload of a Keycloak access token.
type KeycloakClaims struct {
	RealmAccess    *RoleSet           `json:"realm_access,omitempty"`
	ResourceAccess map[string]RoleSet `json:"resource_access,omitempty"`
	jwt.RegisteredClaims
}

// RolesFor returns the realm roles when realm_access is present, otherwise
// the roles of clientID under resource_access, otherwise an empty list.
func (c *KeycloakClaims) RolesFor(clientID string) []string {
	var roles []string
	switch {
	case c.RealmAccess != nil:
		roles = c.RealmAccess.Roles
	case c.ResourceAccess != nil:
		roles = c.ResourceAccess[clientID].Roles
	}
	if roles == nil {
		return []string{}
	}
	return roles
}

// inspectPayload decodes the middle segment of a compact JWT without
// checking anything else. It only classifies malformed input; it never
// authenticates.
func inspectPayload(token string) (*KeycloakClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrTokenFormat
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenDecode, err)
	}
	var claims KeycloakClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenParse, err)
	}
	return &claims, nil
}

// KeycloakOptions configures a KeycloakVerifier.
type KeycloakOptions struct {
	// Issuer is compared to the iss claim when set.
	Issuer string
	// Audience must appear in the aud claim when set.
	Audience string
	// ClientID selects resource_access roles. Defaults to DefaultClientID.
	ClientID string
}

// KeycloakVerifier verifies RS256 access tokens against the realm JWKS and
// extracts Claims.
type KeycloakVerifier struct {
	keys   *KeySet
	opts   KeycloakOptions
	parser *jwt.Parser
}

func NewKeycloakVerifier(keys *KeySet, opts KeycloakOptions) *KeycloakVerifier {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	return &KeycloakVerifier{keys: keys, opts: opts, parser: jwt.NewParser(parserOpts...)}
}

// Verify rejects malformed tokens with ErrTokenFormat, ErrTokenDecode or
// ErrTokenParse, and any token whose signature, expiry, issuer or audience
// does not check out with ErrTokenInvalid.
func (v *KeycloakVerifier) Verify(ctx context.Context, tokenString string) (Claims, error) {
	if _, err := inspectPayload(tokenString); err != nil {
		return Claims{}, fmt.Errorf("keycloak token: %w", err)
	}

	claims := &KeycloakClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return Claims{}, fmt.Errorf("keycloak token: %w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("keycloak token: %w", ErrTokenInvalid)
	}

	return Claims{Subject: claims.Subject, Roles: claims.RolesFor(v.opts.ClientID)}, nil
}
