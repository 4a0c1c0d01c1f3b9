package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gameshop/internal/config"
	"gameshop/internal/middleware"
	"gameshop/internal/monitor"
)

// AdminRole is the JWT role allowed on /admin routes
const AdminRole = "admin"

// RouterDeps is everything the HTTP surface needs
type RouterDeps struct {
	Config    *config.Config
	Validator middleware.TokenValidator
	Metrics   *monitor.Metrics
	Gatherer  prometheus.Gatherer
	// CheckoutLimiter is optional and caps purchases per user cluster-wide
	CheckoutLimiter middleware.WindowLimiter

	Purchase *PurchaseHandler
	Catalog  *CatalogHandler
	Account  *AccountHandler
	Admin    *AdminHandler
	Health   *HealthHandler
}

// NewRouter wires middleware and routes
func NewRouter(d RouterDeps) *gin.Engine {
	cfg := d.Config
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	if cfg.Security.CORS.Enabled {
		router.Use(middleware.CORS(cfg.Security))
	}
	if cfg.Metrics.Enabled {
		router.Use(middleware.Observe(d.Metrics))
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.PerIP.RPS > 0 {
		router.Use(middleware.IPRateLimit(float64(cfg.RateLimit.PerIP.RPS), cfg.RateLimit.PerIP.Burst))
	}
	router.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	router.GET("/health", d.Health.Check)
	if cfg.Metrics.Enabled && d.Gatherer != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(d.Validator))
	if cfg.RateLimit.Enabled && cfg.RateLimit.PerUser.RPS > 0 {
		v1.Use(middleware.UserRateLimit(float64(cfg.RateLimit.PerUser.RPS), cfg.RateLimit.PerUser.Burst))
	}
	{
		buy := []gin.HandlerFunc{}
		if d.CheckoutLimiter != nil {
			buy = append(buy, middleware.SharedUserLimit(d.CheckoutLimiter))
		}
		v1.POST("/checkout", append(buy, d.Purchase.Checkout)...)
		v1.POST("/purchase", append(buy, d.Purchase.Purchase)...)
		v1.GET("/purchases", d.Purchase.History)

		v1.GET("/products/:id/availability", d.Catalog.Availability)
		v1.GET("/promos/:code/quote", d.Catalog.QuotePromo)

		v1.GET("/me/balance", d.Account.Balance)
		v1.POST("/topups", d.Account.SubmitTopup)

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole(AdminRole))
		{
			admin.POST("/topups/action", d.Admin.TopupAction)
			admin.GET("/topups", d.Admin.ListTopups)
			admin.POST("/products/:id/stock", d.Admin.IngestStock)
		}
	}

	return router
}
