package audit

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the audit listing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
}
