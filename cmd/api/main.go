package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gameshop/internal/audit"
	"gameshop/internal/config"
	"gameshop/internal/database"
	"gameshop/internal/handler"
	"gameshop/internal/middleware"
	"gameshop/internal/monitor"
	"gameshop/internal/redis"
	"gameshop/internal/repository"
	"gameshop/internal/service/ledger"
	"gameshop/internal/service/promo"
	"gameshop/internal/service/purchase"
	"gameshop/internal/service/stock"
	"gameshop/internal/service/topup"
	"gameshop/internal/utils"
	"gameshop/pkg/bloom"
	"gameshop/pkg/breaker"
	"gameshop/pkg/limiter"
	"gameshop/pkg/lock"
	"gameshop/pkg/log"
	"gameshop/pkg/secret"
	"gameshop/pkg/snowflake"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig(os.Getenv("GAMESHOP_CONFIG"))
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to load config")
	}

	if err := log.Init(log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.WithError(err).Fatal("Failed to initialize logger")
	}

	config.WatchConfig(func(reloaded *config.Config) {
		if lvl, err := logrus.ParseLevel(reloaded.Log.Level); err == nil {
			log.GetLogger().SetLevel(lvl)
			log.WithField("level", reloaded.Log.Level).Info("Log level reloaded")
		}
	})

	if err := database.Init(cfg); err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Fatal("Failed to initialize database")
	}
	defer database.Close()
	db := database.DB

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize redis")
		}
		defer rdb.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *monitor.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetrics(registry, cfg.Metrics.Namespace)
	}

	tracer, err := monitor.NewTracer(cfg.Tracing, config.CurrentEnv())
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracer")
	}

	box, err := secret.NewBoxFromHex(cfg.Security.Encryption.Key)
	if err != nil {
		log.WithError(err).Fatal("Failed to load encryption key")
	}

	ids, err := snowflake.NewIDGenerator(cfg.Purchase.NodeID)
	if err != nil {
		log.WithError(err).Fatal("Failed to create ID generator")
	}

	vipTopup, err := decimal.NewFromString(cfg.Tiers.VIPTopup)
	if err != nil {
		log.WithError(err).Fatal("Invalid tiers.vip_topup")
	}

	availability, err := stock.NewAvailabilityCache(ctx, cfg.Purchase.AvailabilityCacheTTL)
	if err != nil {
		log.WithError(err).Fatal("Failed to create availability cache")
	}
	defer availability.Close()

	sinks := []audit.Sink{audit.NewGormRecorder(repository.NewAuditRepository(db)), audit.LogRecorder{}}
	if cfg.Kafka.Enabled {
		kafkaSink := audit.NewKafkaRecorder(cfg.Kafka)
		defer kafkaSink.Close()
		sinks = append(sinks, audit.Guarded(kafkaSink, breaker.New("audit-kafka", breaker.Config{
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			OnStateChange: func(name string, from, to breaker.State) {
				log.WithFields(map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state changed")
			},
		})))
	}
	recorder := audit.Multi(metrics, sinks...)

	txOptions := database.DefaultTxOptions()
	txOptions.MaxRetries = cfg.Database.MaxTxRetries

	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	stockRepo := repository.NewStockRepository(db)

	stockService := stock.NewStockService(db, productRepo, stockRepo, box, stock.Options{
		Cache:     availability,
		Metrics:   metrics,
		TxOptions: txOptions,
		Separator: cfg.Purchase.StockSeparator,
	})
	ledgerService := ledger.NewLedgerService(userRepo, repository.NewLedgerRepository(db), ledger.Tiers{
		VIPTopup:         vipTopup,
		GoldBorderPoints: cfg.Tiers.GoldBorderPoints,
	})
	promoService := promo.NewPromoService(repository.NewPromoRepository(db))

	purchaseService := purchase.NewPurchaseService(purchase.Deps{
		DB:        db,
		Users:     userRepo,
		Products:  productRepo,
		Stock:     stockRepo,
		Purchases: repository.NewPurchaseRepository(db),
		Pool:      stockService,
		Ledger:    ledgerService,
		Promos:    promoService,
		Recorder:  recorder,
		IDs:       ids,
		Seen:      bloom.New(cfg.Purchase.IdempotencyFilter.Capacity, cfg.Purchase.IdempotencyFilter.FPRate),
		Metrics:   metrics,
	}, purchase.Options{
		MaxCartItems: cfg.Purchase.MaxCartItems,
		PointsPerTHB: cfg.Rewards.PointsPerTHB,
		TxOptions:    txOptions,
	})

	var locker *lock.Locker
	if rdb != nil {
		locker = lock.NewLocker(rdb, "gameshop:lock:topup:", cfg.Redis.LockTTL)
	}
	topupService := topup.NewTopupService(topup.Deps{
		DB:       db,
		Users:    userRepo,
		Topups:   repository.NewTopupRepository(db),
		Ledger:   ledgerService,
		Recorder: recorder,
		Locker:   locker,
		Metrics:  metrics,
	}, txOptions)

	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.Security.JWT.Expire)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// a typed nil client must not reach the health check
	var redisHealth goredis.Cmdable
	if rdb != nil {
		redisHealth = rdb
	}

	var checkoutLimiter middleware.WindowLimiter
	if rdb != nil && cfg.RateLimit.Enabled && cfg.RateLimit.Checkout.Limit > 0 {
		checkoutLimiter = limiter.NewSlidingWindow(rdb, "gameshop:ratelimit:checkout:", cfg.RateLimit.Checkout.Limit, cfg.RateLimit.Checkout.Window)
	}

	router := handler.NewRouter(handler.RouterDeps{
		Config:    cfg,
		Validator: middleware.JWTValidator(jwtManager),
		Metrics:   metrics,
		Gatherer:  registry,

		CheckoutLimiter: checkoutLimiter,

		Purchase: handler.NewPurchaseHandler(purchaseService),
		Catalog:  handler.NewCatalogHandler(stockService, promoService),
		Account:  handler.NewAccountHandler(ledgerService, topupService),
		Admin:    handler.NewAdminHandler(topupService, stockService),
		Health:   handler.NewHealthHandler(db, redisHealth, version),
	})

	server := &http.Server{
		Addr:           cfg.Server.GetAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderMB << 20,
	}

	go func() {
		log.WithFields(map[string]interface{}{
			"addr": server.Addr,
			"mode": cfg.Server.Mode,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}

	log.Info("Server exited")
}
