package auth

import "errors"

var (
	ErrHeaderMissing     = errors.New("authorization header missing")
	ErrHeaderFormat      = errors.New("invalid authorization header format")
	ErrTokenFormat       = errors.New("invalid token format")
	ErrTokenDecode       = errors.New("failed to decode token payload")
	ErrTokenParse        = errors.New("failed to parse token payload")
	ErrTokenInvalid      = errors.New("invalid token")
	ErrRoleInsufficient  = errors.New("insufficient role")
	ErrDevTokensDisabled = errors.New("development tokens are disabled")
)
