package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BorisDmv/md-blog-api/internal/auth"
	"github.com/BorisDmv/md-blog-api/internal/logging"
)

// Authenticator verifies the raw Authorization header value.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (auth.Claims, error)
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RequireRole rejects requests without a valid bearer token (401) or whose
// claims lack role (403). Accepted claims are stored in the request context.
func RequireRole(authenticator Authenticator, role string, log logging.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				log.Debug("authentication failed", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, unauthorizedMessage(err))
				return
			}
			if !claims.HasRole(role) {
				log.Info("role missing", "path", r.URL.Path, "subject", claims.Subject, "role", role)
				writeError(w, http.StatusForbidden, auth.ErrRoleInsufficient.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrHeaderMissing):
		return auth.ErrHeaderMissing.Error()
	case errors.Is(err, auth.ErrHeaderFormat):
		return auth.ErrHeaderFormat.Error()
	default:
		return auth.ErrTokenInvalid.Error()
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Error: message})
}
