package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Get("/{id}", h.GetSession)
		r.Post("/{id}/resume", h.ResumeSession)
		r.Post("/{id}/chat", h.Chat)
		r.Post("/{id}/approvals/{callId}", h.ResolveApproval)
		r.Get("/{id}/stream", h.Stream)
	})
}
