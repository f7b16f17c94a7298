package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cswank/store/internal/service"
	"github.com/cswank/store/pkg/health"
	"github.com/cswank/store/pkg/middleware"
)

// FakeProviderPath is where the development commerce provider is mounted.
const FakeProviderPath = "/_fake/provider"

// RouterConfig holds the router settings that come from configuration.
type RouterConfig struct {
	ServiceName    string
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	// FakeProvider, when set, is served under FakeProviderPath.
	FakeProvider http.Handler
}

// NewRouter creates a chi router with all storefront cart routes registered.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storefront"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(cartService, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.CartSession(cfg.SessionTTL))
		r.Use(middleware.NoStore)

		r.Get("/cart/lineitem/{category}/{subcategory}/{key}", cartHandler.LineItem)

		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Get("/", cartHandler.GetCart)
			r.Put("/", cartHandler.SaveCart)
			r.Delete("/", cartHandler.ClearCart)

			r.Post("/product", cartHandler.CommitProduct)
			r.Post("/wholesale", cartHandler.CommitBulk)

			r.Patch("/items/{key}", cartHandler.UpdateLine)
			r.Delete("/items/{key}", cartHandler.RemoveLine)

			r.Get("/view", cartHandler.RenderCart)
			r.Post("/checkout", cartHandler.Checkout)
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Post("/confirm-delete", cartHandler.ConfirmDelete)
	})

	if cfg.FakeProvider != nil {
		r.Mount(FakeProviderPath, http.StripPrefix(FakeProviderPath, cfg.FakeProvider))
	}

	return r
}
