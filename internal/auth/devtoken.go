package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const devIssuer = "blog-dev"

type devClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// DevTokens issues and verifies HS256 tokens for local development. The
// secret comes from configuration.
type DevTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewDevTokens(secret string, ttl time.Duration) (*DevTokens, error) {
	if secret == "" {
		return nil, ErrDevTokensDisabled
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DevTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for subject carrying roles. It returns the token and
// its expiry.
func (d *DevTokens) Issue(subject string, roles []string) (string, time.Time, error) {
	return d.IssueWithTTL(subject, roles, d.ttl)
}

func (d *DevTokens) IssueWithTTL(subject string, roles []string, ttl time.Duration) (string, time.Time, error) {
	now := d.now()
	exp := now.Add(ttl)
	if roles == nil {
		roles = []string{}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, devClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    devIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(d.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign dev token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry and returns the embedded
// subject and roles.
func (d *DevTokens) Verify(_ context.Context, tokenString string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &devClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return d.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(devIssuer),
		jwt.WithTimeFunc(d.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("dev token: %w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*devClaims)
	if !ok || !parsed.Valid {
		return Claims{}, fmt.Errorf("dev token: %w", ErrTokenInvalid)
	}
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return Claims{Subject: claims.Subject, Roles: roles}, nil
}
