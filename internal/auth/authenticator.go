package auth

import (
	"context"
	"errors"
	"fmt"
)

// Verifier turns a raw token into Claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// Authenticator tries each configured verifier in order and returns the
// claims of the first that accepts the token.
type Authenticator struct {
	verifiers []Verifier
}

// NewAuthenticator skips nil verifiers, so disabled paths can be passed as nil.
func NewAuthenticator(verifiers ...Verifier) *Authenticator {
	a := &Authenticator{}
	for _, v := range verifiers {
		if v == nil || isNilVerifier(v) {
			continue
		}
		a.verifiers = append(a.verifiers, v)
	}
	return a
}

// Authenticate parses the Authorization header value and verifies its token.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Claims, error) {
	token, err := ExtractBearer(header)
	if err != nil {
		return Claims{}, err
	}
	if len(a.verifiers) == 0 {
		return Claims{}, fmt.Errorf("%w: no token verifier configured", ErrTokenInvalid)
	}

	errs := make([]error, 0, len(a.verifiers))
	for _, v := range a.verifiers {
		claims, err := v.Verify(ctx, token)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	return Claims{}, fmt.Errorf("%w: %w", ErrTokenInvalid, errors.Join(errs...))
}

func isNilVerifier(v Verifier) bool {
	switch t := v.(type) {
	case *DevTokens:
		return t == nil
	case *KeycloakVerifier:
		return t == nil
	}
	return false
}
