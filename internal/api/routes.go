package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zerverless/jobmarket/internal/config"
	"github.com/zerverless/jobmarket/internal/feed"
	"github.com/zerverless/jobmarket/internal/identity"
	"github.com/zerverless/jobmarket/internal/logging"
	"github.com/zerverless/jobmarket/internal/market"
	"github.com/zerverless/jobmarket/internal/ws"
)

func NewRouter(cfg *config.Config, svc *market.Service, bus *feed.Bus, subscribers *feed.Manager) http.Handler {
	r := chi.NewRouter()
	logger := logging.ComponentLogger("api")

	provider := identity.Chain{
		identity.NewTokenProvider(cfg.Tokens()),
		identity.HeaderProvider{Header: cfg.Identity.Header},
	}

	r.Use(middleware.RequestID)
	r.Use(recoveryMiddleware(logger))
	r.Use(identity.Middleware(provider))
	r.Use(loggingMiddleware(logger))

	h := NewHandlers(cfg, svc, subscribers)
	wsServer := ws.NewServer(bus, subscribers, cfg.HTTP.CORSOrigins)

	// Health & Info
	r.Get("/health", h.Health)
	r.Get("/info", h.Info)
	r.Get("/stats", h.Stats)

	r.Route("/api", func(r chi.Router) {
		if cfg.HTTP.RateLimit > 0 {
			r.Use(newRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst).middleware)
		}

		r.Post("/jobs", h.CreateJob)
		r.Get("/jobs", h.ListJobs)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Post("/obtain", h.ObtainJob)
			r.Post("/submit", h.SubmitJob)
			r.Post("/reject", h.RejectJob)
			r.Post("/approve", h.ApproveJob)
			r.Get("/check", h.CheckJob)
		})

		r.Get("/accounts/me", h.Me)
		if cfg.Ledger.Faucet {
			r.Post("/accounts/{identity}/fund", h.Fund)
		}
	})

	// WebSocket
	r.Get("/ws/feed", wsServer.HandleFeed)

	return r
}
