package sandbox

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/productcatalog/internal/platform/web"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// BasePath is where the product resource is mounted.
const BasePath = "/api/products"

// NewRouter mounts api under BasePath with request id, logging and recovery middleware.
// Every product request is delayed by latency.
func NewRouter(api ProductAPI, logger *slog.Logger, latency time.Duration) http.Handler {
	mux := chi.NewRouter()
	mux.Use(web.RequestIDInjector)
	mux.Use(web.StructuredLogger(logger))
	mux.Use(web.Recoverer(logger))

	mux.Route(BasePath, func(r chi.Router) {
		r.Use(web.Latency(latency))
		r.Get("/", api.FindAll)
		r.Post("/", api.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", api.FindByID)
			r.Put("/", api.Update)
			r.Delete("/", api.DeleteByID)
		})
	})

	mux.Get("/healthz", api.HealthCheck)

	return otelhttp.NewHandler(mux, "catalog-sandbox")
}
