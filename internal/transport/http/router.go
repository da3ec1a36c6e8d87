package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"landledger/pkg/platform/middleware/auth"
)

// NewRouter wires the full route tree. Everything under /api/v1 requires a
// bearer token; health and metrics stay open for probes and scrapers.
func NewRouter(h *Handler, jwtSigningKey []byte) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(jwtSigningKey))

		r.Route("/parcels", func(r chi.Router) {
			r.Post("/", h.submitParcel)
			r.Get("/", h.listParcels)
			r.Get("/{parcelID}", h.getParcel)
			r.Post("/{parcelID}/review", h.reviewParcel)
			r.Get("/{parcelID}/chain", h.getParcelChainRecord)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", h.initiateTransfer)
			r.Get("/", h.listTransfers)
			r.Get("/{transferID}", h.getTransfer)
			r.Post("/{transferID}/execute", h.executeTransfer)
			r.Post("/{transferID}/cancel", h.cancelTransfer)
		})
	})

	return r
}
