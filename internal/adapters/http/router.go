package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bazarly/auth-service/internal/application"
	"github.com/bazarly/auth-service/internal/obs"
)

// Handler is the HTTP adapter entrypoint for the phone-auth use-cases.
// Keeping only the application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
	ready   func(ctx context.Context) error
}

// NewHandler constructs an HTTP handler bound to the application service.
// ready probes backing stores for /readyz; nil means always ready.
func NewHandler(service *application.Service, ready func(ctx context.Context) error) *Handler {
	return &Handler{service: service, ready: ready}
}

// NewRouter registers the HTTP routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(rateLimitMiddleware(20, 40))

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Method(http.MethodGet, "/metrics", obs.Handler())
	r.Get("/.well-known/jwks.json", handler.jwks)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/otp/send", handler.otpSend)
		r.Post("/otp/verify", handler.otpVerify)
		r.Post("/register/complete", handler.registerComplete)
		r.Post("/refresh", handler.refresh)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Get("/me", handler.me)
			r.Put("/me", handler.meUpdate)
			r.Delete("/me", handler.meDeactivate)
		})
	})

	return r
}
