package api

import (
	"net/http"
	"time"

	"sql-chat/internal/auth"
	"sql-chat/internal/chat"
	"sql-chat/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// UI serves everything outside /api, /health and /metrics. Nil disables it.
	UI http.Handler
}

func NewRouter(authenticator *auth.Authenticator, manager *chat.ChatSessionManager, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Handle("/metrics", metrics.Handler())

	authService := NewAuthService(authenticator)
	chatService := NewChatService(manager)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		authService.AddRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(authenticator))
			authService.AddProtectedRoutes(r)
			chatService.AddRoutes(r)
		})
	})

	if cfg.UI != nil {
		r.Handle("/*", cfg.UI)
	}

	return r
}
