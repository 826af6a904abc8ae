// Package auth turns bearer tokens into Claims: the subject and role list of
// the caller.
package auth

import (
	"context"
	"slices"
	"strings"
)

const bearerPrefix = "Bearer "

// Claims is the identity derived from a verified token.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
}

func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// ExtractBearer strips the case-sensitive "Bearer " prefix from an
// Authorization header value.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrHeaderMissing
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrHeaderFormat
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrHeaderFormat
	}
	return token, nil
}

type ctxKey string

const ctxKeyClaims ctxKey = "blog_claims"

// WithClaims stores the authenticated claims in the context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(Claims)
	return c, ok
}
