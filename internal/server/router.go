// Package server wires the HTTP routes of the blog API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/BorisDmv/md-blog-api/internal/handlers"
	"github.com/BorisDmv/md-blog-api/internal/logging"
	appmiddleware "github.com/BorisDmv/md-blog-api/internal/middleware"
)

const authorRole = "author"

type Options struct {
	Port               string
	CorsAllowedOrigins []string

	Store         handlers.PostStore
	Renderer      handlers.Renderer
	Authenticator appmiddleware.Authenticator

	// TestTokens enables GET /test-token when non-nil.
	TestTokens handlers.TokenIssuer

	Logs *logging.Provider

	// AccessLog turns on chi's request logger.
	AccessLog bool
}

// Router is the API handler. Close stops its rate limiter goroutines.
type Router struct {
	http.Handler
	limiters []*appmiddleware.RateLimiter
}

func NewRouter(opts Options) *Router {
	rt := &Router{}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   opts.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)
	r.Use(httprate.LimitByIP(100, time.Minute))

	postsHandler := handlers.NewPostsHandler(opts.Store, opts.Renderer, opts.Logs.Get("handlers"))

	r.Get("/health", handlers.Health(opts.Port))

	if opts.TestTokens != nil {
		// 5 tokens per minute per IP
		tokenLimiter := rt.limiter(5, time.Minute)
		r.With(tokenLimiter.Limit).Get("/test-token", handlers.TestToken(opts.TestTokens, opts.Logs.Get("tokens")))
	}

	r.Get("/posts", postsHandler.List)
	r.Get("/posts/{slug}", postsHandler.Get)
	r.Post("/preview", postsHandler.Preview)

	r.Route("/admin", func(r chi.Router) {
		adminLimiter := rt.limiter(30, time.Minute)
		r.Use(adminLimiter.Limit)
		r.Use(appmiddleware.RequireRole(opts.Authenticator, authorRole, opts.Logs.Get("auth")))

		r.Post("/new", postsHandler.Create)
		r.Put("/edit/{slug}", postsHandler.Update)
		r.Delete("/delete/{slug}", postsHandler.Delete)
	})

	rt.Handler = r
	return rt
}

func (rt *Router) limiter(limit int, window time.Duration) *appmiddleware.RateLimiter {
	l := appmiddleware.NewRateLimiter(limit, window)
	rt.limiters = append(rt.limiters, l)
	return l
}

func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}
