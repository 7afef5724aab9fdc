package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jcmexdev/multihop-creator/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/multihop-creator/internal/pkg/cache"
)

// RouterOptions holds the optional parts of the HTTP surface.
type RouterOptions struct {
	// Idempotency is nil when no Redis is configured.
	Idempotency    cache.Cache
	IdempotencyTTL time.Duration
	// Metrics is nil when metrics are disabled.
	Metrics http.Handler
}

func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middlewares.HeaderXIdempotencyKey, middlewares.HeaderXRequestId},
		MaxAge:         300,
	}))

	r.With(requireInstruction, middlewares.Idempotency(opts.Idempotency, opts.IdempotencyTTL)).Post("/create-job", handler.CreateJob)
	r.Get("/health", handler.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}
