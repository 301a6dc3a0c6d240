package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"chatrelay/internal/handlers"
	"chatrelay/internal/metrics"
	"chatrelay/internal/middleware"
)

// DefaultMaxBodyBytes caps inbound chat payloads.
const DefaultMaxBodyBytes = 1 << 20

type Options struct {
	// FrontendOrigin is the only origin CORS lets through.
	FrontendOrigin string
	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, opts Options, chatHandler *handlers.ChatHandler) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{opts.FrontendOrigin},
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	}))
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))

	// routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", chatHandler.Chat)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
