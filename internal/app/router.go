package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/dividend"
	"github.com/fiscalia/fiscalia/internal/importer"
	"github.com/fiscalia/fiscalia/internal/taxgrade"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	TaxGradeHandler *taxgrade.Handler
	DividendHandler *dividend.Handler
	ImportHandler   *importer.Handler
	AuditHandler    *audit.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.TaxGradeHandler != nil {
			r.Route("/tax-grades", params.TaxGradeHandler.MountRoutes)
		}
		if params.DividendHandler != nil {
			r.Route("/dividends", params.DividendHandler.MountRoutes)
		}
		if params.ImportHandler != nil {
			r.Route("/imports", params.ImportHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit-logs", params.AuditHandler.MountRoutes)
		}
	})

	return r
}
