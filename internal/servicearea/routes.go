package servicearea

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mountly/mountly-backend/internal/middleware"
)

// SetupRoutes serves the service-area API. limiter may be nil.
func SetupRoutes(h *Handlers, sessions middleware.SessionFetcher, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Public: checkout asks whether an address is covered. Address lookups
	// go through the paid geocoder and share the limiter.
	coverage := http.Handler(http.HandlerFunc(h.Coverage))
	if limiter != nil {
		coverage = limitAddressLookups(limiter.Middleware(coverage), coverage)
	}
	r.Method(http.MethodGet, "/coverage", coverage)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(sessions))

		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/service-areas/sync", h.Sync)
		})

		r.Get("/service-areas/{id}", h.GetArea)
		r.Get("/service-areas/{id}/zips", h.ListZips)
		r.Patch("/service-areas/{id}", h.UpdateArea)
		r.Delete("/service-areas/{id}", h.DeleteArea)
		r.Get("/workers/{workerId}/service-areas", h.ListWorkerAreas)
	})

	return r
}

func limitAddressLookups(limited, plain http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") != "" {
			limited.ServeHTTP(w, r)
			return
		}
		plain.ServeHTTP(w, r)
	})
}
