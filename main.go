package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BorisDmv/md-blog-api/internal/auth"
	"github.com/BorisDmv/md-blog-api/internal/config"
	"github.com/BorisDmv/md-blog-api/internal/db"
	"github.com/BorisDmv/md-blog-api/internal/logging"
	"github.com/BorisDmv/md-blog-api/internal/markdown"
	"github.com/BorisDmv/md-blog-api/internal/posts"
	"github.com/BorisDmv/md-blog-api/internal/server"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve", "server":
		err = runServer()
	case "token":
		err = cmdToken(args)
	case "reindex":
		err = cmdReindex()
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`md-blog-api - markdown blog backend

Usage:
  md-blog-api [serve]                              run the HTTP server
  md-blog-api token -sub NAME -roles author -ttl 1h   print a development token
  md-blog-api reindex                              rebuild the index from markdown files

Configuration is read from the environment, .env and BLOG_CONFIG.`)
}

// app holds what every command needs.
type app struct {
	cfg   config.Config
	logs  *logging.Provider
	store *posts.Store
	close func()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logs, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	index, closeIndex, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := posts.Open(cfg.PostsDir, index, posts.WithLogger(logs.Get("posts")))
	if err != nil {
		closeIndex()
		return nil, err
	}
	return &app{cfg: cfg, logs: logs, store: store, close: closeIndex}, nil
}

func openIndex(ctx context.Context, cfg config.Config) (posts.Index, func(), error) {
	switch cfg.IndexBackend {
	case config.BackendPostgres:
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect failed: %w", err)
		}
		return pg, pg.Close, nil
	case config.BackendSQLite:
		lite, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return lite, func() { _ = lite.Close() }, nil
	default:
		return posts.NewJSONIndex(cfg.IndexPath), func() {}, nil
	}
}

func buildAuthenticator(cfg config.Config) (*auth.Authenticator, *auth.DevTokens, error) {
	var dev *auth.DevTokens
	if cfg.DevTokenSecret != "" {
		d, err := auth.NewDevTokens(cfg.DevTokenSecret, cfg.DevTokenTTL)
		if err != nil {
			return nil, nil, err
		}
		dev = d
	}

	var external *auth.KeycloakVerifier
	if cfg.Keycloak.Enabled() {
		keys := auth.NewKeySet(cfg.Keycloak.JWKSURL)
		external = auth.NewKeycloakVerifier(keys, auth.KeycloakOptions{
			Issuer:   cfg.Keycloak.IssuerURL,
			Audience: cfg.Keycloak.Audience,
			ClientID: cfg.Keycloak.ClientID,
		})
	}
	return auth.NewAuthenticator(dev, external), dev, nil
}

func runServer() error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.logs.Get("main")

	if err := a.cfg.RequireVerifier(); err != nil {
		return err
	}

	renderer, err := markdown.NewRenderer(a.cfg.MarkdownExtensions...)
	if err != nil {
		return err
	}
	authenticator, dev, err := buildAuthenticator(a.cfg)
	if err != nil {
		return err
	}

	opts := server.Options{
		Port:               a.cfg.Port,
		CorsAllowedOrigins: a.cfg.CorsAllowedOrigins,
		Store:              a.store,
		Renderer:           renderer,
		Authenticator:      authenticator,
		Logs:               a.logs,
		AccessLog:          true,
	}
	if a.cfg.EnableTestToken && dev != nil {
		opts.TestTokens = dev
		log.Warn("GET /test-token is enabled; do not run this configuration in production")
	}
	router := server.NewRouter(opts)
	defer router.Close()

	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "port", a.cfg.Port, "index", a.cfg.IndexBackend, "posts_dir", a.cfg.PostsDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

func cmdToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("sub", "test-user", "token subject")
	roles := fs.String("roles", "author", "comma separated roles")
	ttl := fs.Duration("ttl", 0, "token lifetime (default BLOG_DEV_TOKEN_TTL)")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dev, err := auth.NewDevTokens(cfg.DevTokenSecret, cfg.DevTokenTTL)
	if err != nil {
		return err
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	lifetime := cfg.DevTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, expires, err := dev.IssueWithTTL(*subject, roleList, lifetime)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func cmdReindex() error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.store.Rebuild(ctx, a.cfg.DefaultAuthor)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d posts\n", n)
	return nil
}
