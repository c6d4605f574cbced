package importer

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the import routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Upload)
	r.Get("/{id}", h.Show)
	r.Get("/{id}/report", h.Report)
}
