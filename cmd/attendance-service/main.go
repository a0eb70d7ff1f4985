// Package main is the entry point for the Attendance Service.
// It validates check-in/check-out submissions through the integrity gateway,
// persists accepted events, and serves history and anomaly reports.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/attendix/attendix/internal/anomaly"
	"github.com/attendix/attendix/internal/attendance"
	"github.com/attendix/attendix/internal/audit"
	"github.com/attendix/attendix/internal/common/config"
	"github.com/attendix/attendix/internal/common/database"
	"github.com/attendix/attendix/internal/common/logger"
	"github.com/attendix/attendix/internal/common/middleware"
	"github.com/attendix/attendix/internal/common/tracing"
	"github.com/attendix/attendix/internal/devicerisk"
	"github.com/attendix/attendix/internal/health"
	"github.com/attendix/attendix/internal/integrity"
	"github.com/attendix/attendix/internal/server"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting Attendance Service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load("attendance-service")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := attendance.InitializeSchema(ctx, db.Pool); err != nil {
		log.Fatal("Failed to initialize attendance schema", zap.Error(err))
	}
	if err := audit.InitializeSchema(ctx, db.Pool); err != nil {
		log.Fatal("Failed to initialize audit schema", zap.Error(err))
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Elasticsearch is optional; its absence only disables the audit index.
	var es *database.ElasticsearchClient
	if cfg.ElasticsearchURL != "" {
		es, err = database.NewElasticsearch(cfg.ElasticsearchURL)
		if err != nil {
			log.Warn("Elasticsearch unavailable, audit search index disabled", zap.Error(err))
			es = nil
		}
	}

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.EnableTracing,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "attendance-service",
		Environment: cfg.Environment,
		SampleRate:  1.0,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Engine assembly: device scorer on Redis, pattern detector, gateway.
	cache := devicerisk.NewRedisCache(rdb.Client, devicerisk.DefaultCachePolicy())
	scorer := devicerisk.NewScorer(cache, log)

	detectorCfg := anomaly.DefaultConfig()
	detectorCfg.WindowDays = cfg.Engine.AnomalyWindowDays
	detectorCfg.MinEvents = cfg.Engine.AnomalyMinEvents
	detector := anomaly.NewDetector(detectorCfg, log)

	gateway := integrity.NewGateway(scorer, detector, integrity.Config{
		ToleranceFactor:    cfg.Engine.GeofenceToleranceFactor,
		RiskCeiling:        cfg.Engine.RiskCeiling,
		AccuracyRiskWeight: cfg.Engine.AccuracyRiskWeight,
	}, log)

	var sink audit.Sink = audit.NopSink{}
	var auditStore *audit.Store
	if cfg.EnableAuditLogging {
		auditStore = audit.NewStore(db.Pool, es, audit.StoreConfig{
			BatchSize:     cfg.AuditBatchSize,
			FlushInterval: time.Duration(cfg.AuditFlushSeconds) * time.Second,
		}, log)
		sink = auditStore
	}

	store := attendance.NewPostgresStore(db.Pool)
	service := attendance.NewService(store, gateway, sink, attendance.ServiceConfig{
		AnomalyWindowDays: cfg.Engine.AnomalyWindowDays,
		HistoryDays:       30,
	}, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(logger.GinMiddleware(log))
	router.Use(middleware.PrometheusMetrics("attendance-service"))
	if cfg.EnableTracing {
		router.Use(otelgin.Middleware("attendance-service"))
	}
	if cfg.EnableRateLimit {
		router.Use(middleware.DistributedRateLimit(rdb.Client, middleware.RateLimitConfig{
			Requests:           cfg.RateLimitRequests,
			Window:             time.Duration(cfg.RateLimitWindow) * time.Second,
			SubmissionRequests: cfg.RateLimitSubmissionRequests,
			SubmissionWindow:   time.Duration(cfg.RateLimitWindow) * time.Second,
		}, log))
	}

	handler := attendance.NewHandler(service, log)
	handler.RegisterRoutes(router.Group("/v1"))

	// Review surface over the decisions index; only available when the
	// search backend is.
	if es != nil {
		if err := audit.EnsureDecisionsIndex(es); err != nil {
			log.Warn("Failed to ensure decisions index", zap.Error(err))
		}
		auditHandler := audit.NewHandler(audit.NewSearcher(es, log), log)
		auditHandler.RegisterRoutes(router.Group("/v1"))
	}

	router.GET("/metrics", middleware.MetricsHandler())

	healthSvc := health.NewService(Version, log)
	healthSvc.Register(health.NewPostgresChecker(db))
	healthSvc.Register(health.NewRedisChecker(rdb))
	if es != nil {
		healthSvc.Register(health.NewElasticsearchChecker(es))
	}
	healthSvc.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	graceful := server.New(server.Config{
		Server:          httpServer,
		Logger:          log,
		ShutdownTimeout: 30 * time.Second,
	})
	if auditStore != nil {
		graceful.AddShutdownFunc("audit-store", auditStore.Close)
	}
	graceful.AddShutdownable(server.CloseTracer(shutdownTracing))
	graceful.AddShutdownable(server.CloseRedis(rdb))
	graceful.AddShutdownable(server.CloseDB(db))

	if err := graceful.ListenAndServe(); err != nil {
		log.Error("Server error", zap.Error(err))
	}

	log.Info("Server exited")
}
