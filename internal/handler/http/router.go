package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storefront/catalog/internal/service"
	apperrors "github.com/storefront/catalog/pkg/errors"
	"github.com/storefront/catalog/pkg/health"
	"github.com/storefront/catalog/pkg/httputil"
	"github.com/storefront/catalog/pkg/middleware"
)

const serviceName = "catalog"

// RouterConfig carries the collaborators and settings the router mounts.
type RouterConfig struct {
	Catalog     *service.CatalogService
	Health      *health.Handler
	Logger      *slog.Logger
	Tokens      middleware.TokenValidator
	CookieName  string
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
	CORSOrigins []string
	PprofCIDRs  []string
	StaticDir   string // empty disables SPA hosting
}

// NewRouter creates a chi router with all catalog routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(cfg.Logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", middleware.MetricsHandler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)

	productHandler := NewProductHandler(cfg.Catalog, cfg.Logger)
	authenticate := middleware.Authenticate(cfg.Tokens, cfg.CookieName)

	r.Route("/api/products", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Use(ContentTypeJSON)

		r.Get("/", productHandler.ListProducts)
		r.Get("/top", productHandler.TopProducts)
		r.Get("/{id}", productHandler.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{id}/reviews", productHandler.CreateReview)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", productHandler.CreateProduct)
				r.Put("/{id}", productHandler.UpdateProduct)
				r.Delete("/{id}", productHandler.DeleteProduct)
			})
		})
	})

	if cfg.StaticDir != "" {
		r.Get("/*", spaHandler(cfg.StaticDir).ServeHTTP)
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteError(w, r, apperrors.NotFound("Route"), cfg.Logger)
		})
	}

	return r
}
