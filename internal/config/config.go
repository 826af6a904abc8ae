package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Port               string
	PostsDir           string
	IndexPath          string
	IndexBackend       string
	DatabaseURL        string
	SQLitePath         string
	CorsAllowedOrigins []string

	DevTokenSecret  string
	DevTokenTTL     time.Duration
	EnableTestToken bool

	Keycloak Keycloak

	MarkdownExtensions []string
	DefaultAuthor      string

	LogLevel  string
	LogFormat string
}

type Keycloak struct {
	IssuerURL string
	JWKSURL   string
	ClientID  string
	Audience  string
}

// Enabled reports whether external tokens can be verified.
func (k Keycloak) Enabled() bool {
	return k.JWKSURL != ""
}

// Load reads .env (if present), an optional config file named by BLOG_CONFIG
// and the environment, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if file := strings.TrimSpace(v.GetString("BLOG_CONFIG")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BLOG_SERVICE_PORT", "8000")
	v.SetDefault("BLOG_POSTS_DIR", "posts")
	v.SetDefault("BLOG_INDEX_PATH", "posts.json")
	v.SetDefault("BLOG_INDEX_BACKEND", BackendJSON)
	v.SetDefault("BLOG_SQLITE_PATH", "blog.db")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("BLOG_DEV_TOKEN_TTL", "1h")
	v.SetDefault("BLOG_ENABLE_TEST_TOKEN", false)
	v.SetDefault("KEYCLOAK_CLIENT_ID", "blog-admin")
	v.SetDefault("BLOG_DEFAULT_AUTHOR", "admin")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

func fromViper(v *viper.Viper) Config {
	cfg := Config{
		Port:               getString(v, "BLOG_SERVICE_PORT"),
		PostsDir:           getString(v, "BLOG_POSTS_DIR"),
		IndexPath:          getString(v, "BLOG_INDEX_PATH"),
		IndexBackend:       strings.ToLower(getString(v, "BLOG_INDEX_BACKEND")),
		DatabaseURL:        getString(v, "DATABASE_URL"),
		SQLitePath:         getString(v, "BLOG_SQLITE_PATH"),
		CorsAllowedOrigins: splitCSV(getString(v, "CORS_ALLOWED_ORIGINS")),
		DevTokenSecret:     getString(v, "BLOG_DEV_TOKEN_SECRET"),
		DevTokenTTL:        v.GetDuration("BLOG_DEV_TOKEN_TTL"),
		EnableTestToken:    v.GetBool("BLOG_ENABLE_TEST_TOKEN"),
		Keycloak: Keycloak{
			IssuerURL: strings.TrimSuffix(getString(v, "KEYCLOAK_ISSUER_URL"), "/"),
			JWKSURL:   getString(v, "KEYCLOAK_JWKS_URL"),
			ClientID:  getString(v, "KEYCLOAK_CLIENT_ID"),
			Audience:  getString(v, "KEYCLOAK_AUDIENCE"),
		},
		MarkdownExtensions: splitList(getString(v, "BLOG_MARKDOWN_EXTENSIONS")),
		DefaultAuthor:      getString(v, "BLOG_DEFAULT_AUTHOR"),
		LogLevel:           getString(v, "LOG_LEVEL"),
		LogFormat:          getString(v, "LOG_FORMAT"),
	}
	if cfg.Keycloak.JWKSURL == "" && cfg.Keycloak.IssuerURL != "" {
		cfg.Keycloak.JWKSURL = cfg.Keycloak.IssuerURL + "/protocol/openid-connect/certs"
	}
	return cfg
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	switch c.IndexBackend {
	case BackendJSON:
		if c.IndexPath == "" {
			return fmt.Errorf("BLOG_INDEX_PATH is required for the %s index", BackendJSON)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s index", BackendPostgres)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("BLOG_SQLITE_PATH is required for the %s index", BackendSQLite)
		}
	default:
		return fmt.Errorf("unknown BLOG_INDEX_BACKEND %q", c.IndexBackend)
	}
	if c.PostsDir == "" {
		return fmt.Errorf("BLOG_POSTS_DIR is required")
	}
	if c.EnableTestToken && c.DevTokenSecret == "" {
		return fmt.Errorf("BLOG_ENABLE_TEST_TOKEN requires BLOG_DEV_TOKEN_SECRET")
	}
	return nil
}

// RequireVerifier fails unless dev tokens or Keycloak are configured. Only
// the server needs it; offline commands such as reindex do not.
func (c Config) RequireVerifier() error {
	if c.DevTokenSecret == "" && !c.Keycloak.Enabled() {
		return fmt.Errorf("no token verifier configured: set BLOG_DEV_TOKEN_SECRET or KEYCLOAK_ISSUER_URL/KEYCLOAK_JWKS_URL")
	}
	return nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func splitCSV(value string) []string {
	out := splitList(value)
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
