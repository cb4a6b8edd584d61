package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/healthassist/internal/middleware"
	"github.com/capitalize-ai/healthassist/internal/service"
	"github.com/capitalize-ai/healthassist/pkg/logger"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Health        *HealthHandler
	Logger        *logger.Logger

	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the chi router for the API.
func NewRouter(cfg RouterConfig) http.Handler {
	cfg.Logger = logger.OrGlobal(cfg.Logger)

	conversationHandler := NewConversationHandler(cfg.Conversations, cfg.Logger)
	messageHandler := NewMessageHandler(cfg.Conversations, cfg.Messages, cfg.Logger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
		r.Get("/ready", cfg.Health.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/chat", messageHandler.Chat)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(middleware.RequireConversationID)

				r.Get("/", conversationHandler.Get)
				r.Patch("/", conversationHandler.Rename)
				r.Delete("/", conversationHandler.Delete)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Append)
			})
		})
	})

	return r
}
