package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/idempotency"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"github.com/robertarktes/event-ticketing/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware(jwtSecret))
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware(idemp))

	// Public browse and scan-preview.
	r.Get("/v1/events", h.ListEvents)
	r.Get("/v1/events/{id}", h.GetEvent)
	r.Get("/v1/tickets/validate/{token}", h.ValidateTicket)

	// Buyers.
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(domain.RoleClient, domain.RoleProvider, domain.RoleAdmin))
		r.Post("/v1/tickets/purchase", h.Purchase)
		r.Get("/v1/tickets", h.MyTickets)
		r.Post("/v1/tickets/{id}/refund", h.RequestRefund)
	})

	// Providers and admins.
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(domain.RoleProvider, domain.RoleAdmin))
		r.Post("/v1/events", h.CreateEvent)
		r.Patch("/v1/events/{id}", h.UpdateEvent)
		r.Post("/v1/events/{id}/publish", h.PublishEvent)
		r.Delete("/v1/events/{id}", h.CancelEvent)
		r.Get("/v1/events/{id}/stats", h.EventStats)
		r.Post("/v1/tickets/{id}/use", h.UseTicket)
		r.Get("/v1/providers/{id}/stats", h.ProviderStats)
	})

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
