// Package app wires the catalog client and the sandbox API from configuration.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/productcatalog/internal/config"
	"github.com/abgdnv/productcatalog/internal/platform/rest"
	"github.com/abgdnv/productcatalog/internal/product/sandbox"
	"github.com/abgdnv/productcatalog/internal/product/service"
	"github.com/abgdnv/productcatalog/internal/product/store"
)

type Dependencies struct {
	ProductService service.ProductService
	Store          *store.Store
	Logger         *slog.Logger
}

// SetupDependencies builds the REST client, the product service and the store
// for the API configured in cfg.
func SetupDependencies(cfg *config.Config, logger *slog.Logger, opts ...store.Option) (*Dependencies, error) {
	clientOpts := []rest.Option{
		rest.WithLogger(logger.With("component", "rest-client")),
		rest.WithTimeout(cfg.API.Timeout),
	}
	if cb := cfg.Resilience.CircuitBreaker; cb.Enabled {
		clientOpts = append(clientOpts, rest.WithCircuitBreaker(rest.BreakerConfig{
			ConsecutiveFailures: cb.ConsecutiveFailures,
			OpenTimeout:         cb.OpenTimeout,
		}))
	}
	client, err := rest.NewClient(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create product API client: %w", err)
	}

	pService := service.NewService(client, logger)
	return &Dependencies{
		ProductService: pService,
		Store:          store.New(pService, logger, opts...),
		Logger:         logger,
	}, nil
}

// Close cancels the requests still in flight.
func (d *Dependencies) Close() {
	d.Store.Close()
}

// SetupSandboxHandler initializes the routes of the in-memory product API.
// Used by E2E tests to run the API in an httptest server.
func SetupSandboxHandler(repository sandbox.ProductRepository, latency time.Duration, logger *slog.Logger) http.Handler {
	return sandbox.NewRouter(sandbox.NewAPI(repository, logger), logger, latency)
}

// SetupHttpServer creates and configures an HTTP server for the sandbox API.
func SetupHttpServer(handler http.Handler, cfg *config.Config) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPServer.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPServer.Timeout.Read,
		WriteTimeout:      cfg.HTTPServer.Timeout.Write,
		IdleTimeout:       cfg.HTTPServer.Timeout.Idle,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
		MaxHeaderBytes:    cfg.HTTPServer.MaxHeaderBytes,
	}
	return server
}
