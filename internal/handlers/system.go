package handlers

import (
	"net/http"
	"time"

	"github.com/BorisDmv/md-blog-api/internal/logging"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Port    string `json:"port"`
}

// Health reports liveness and the port the service was configured with.
func Health(port string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Message: "Blog backend is running",
			Port:    port,
		})
	}
}

// TokenIssuer mints development tokens.
type TokenIssuer interface {
	Issue(subject string, roles []string) (string, time.Time, error)
}

type TestTokenResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

const (
	testTokenSubject = "test-user"
	testTokenRole    = "author"
)

// TestToken hands out a short-lived author token for local testing.
func TestToken(issuer TokenIssuer, log logging.Logger) http.HandlerFunc {
	if log == nil {
		log = logging.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, expires, err := issuer.Issue(testTokenSubject, []string{testTokenRole})
		if err != nil {
			log.Error("issue test token", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to issue token")
			return
		}
		log.Info("test token issued", "subject", testTokenSubject, "expires_at", expires)
		respondJSON(w, http.StatusOK, TestTokenResponse{
			Token:   token,
			Message: "Use this token for testing protected endpoints",
		})
	}
}
