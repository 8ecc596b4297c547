package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/covenantwatch/internal/application"
	appservice "github.com/turtacn/covenantwatch/internal/application/service"
	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/models"
	domainservice "github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/internal/infrastructure/audit"
	"github.com/turtacn/covenantwatch/internal/infrastructure/consumers"
	"github.com/turtacn/covenantwatch/internal/infrastructure/ledger"
	"github.com/turtacn/covenantwatch/internal/infrastructure/modelstore"
	"github.com/turtacn/covenantwatch/internal/infrastructure/monitoring"
	"github.com/turtacn/covenantwatch/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/covenantwatch/internal/infrastructure/persistence/redis"
	"github.com/turtacn/covenantwatch/internal/infrastructure/ratelimit"
	grpcserver "github.com/turtacn/covenantwatch/internal/interfaces/grpc"
	httpserver "github.com/turtacn/covenantwatch/internal/interfaces/http"
	"github.com/turtacn/covenantwatch/internal/interfaces/http/handlers"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

const (
	shutdownTimeout     = 15 * time.Second
	healthProbeInterval = 10 * time.Second
	bucketIdleTimeout   = 10 * time.Minute
)

// app owns every long-lived component of the service.
type app struct {
	cfg *config.Config
	log logger.Logger

	tracing *monitoring.TracingManager
	db      *postgres.DBConnection
	redis   *redis.RedisConnection
	kafka   *audit.KafkaProducer
	checks  *consumers.CovenantCheckConsumer

	watcher    *modelstore.Watcher
	localLimit *ratelimit.LocalRateLimiter
	router     *httpserver.Router
	grpc       *grpcserver.Server
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	// Tracing
	a.tracing, err = monitoring.NewTracingManager(&cfg.Tracing, log)
	if err != nil {
		return nil, err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := monitoring.NewMetrics(reg)
	metrics := monitoring.NewMetricsAdapter(promMetrics)

	// Database
	a.db, err = postgres.NewDBConnection(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err = postgres.RegisterQueryMetrics(a.db.DB(), metrics); err != nil {
		return nil, err
	}

	// Redis is optional: without it the cache is process-local and
	// idempotency keys are not enforced.
	var redisClient goredis.UniversalClient
	if cfg.Redis.Enabled {
		a.redis, err = redis.NewRedisConnection(ctx, &cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		redisClient = a.redis.Client()
	}

	// Audit: database first, Kafka as a secondary sink.
	auditRepo := postgres.NewAuditRepository(a.db.DB())
	var secondaries []domainservice.AuditService
	if cfg.Kafka.Enabled {
		a.kafka, err = audit.NewKafkaProducer(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		secondaries = append(secondaries, a.kafka)
	}
	auditSvc := audit.NewFanout(auditRepo, log, secondaries...)

	// Prediction cache
	var cache domainservice.PredictionCache
	if cfg.Cache.Enabled {
		var backing goredis.UniversalClient
		if cfg.Cache.UseRedisBacking {
			backing = redisClient
		}
		cache = redis.NewPredictionCache(backing, cfg.Cache.TTL(), time.Duration(cfg.Cache.CleanupSeconds)*time.Second, metrics, log)
	}

	// Model
	params := models.DefaultModelParameters()
	if cfg.Model.Path != "" {
		if params, err = modelstore.Load(cfg.Model.Path); err != nil {
			return nil, err
		}
	}
	model, err := domainservice.NewRiskModel(params, domainservice.NoiseConfig{Mode: cfg.Prediction.Mode()}, nil)
	if err != nil {
		return nil, err
	}
	metrics.SetModelVersion(params.Version)
	var reloader handlers.ModelReloader
	if cfg.Model.Path != "" {
		a.watcher = modelstore.NewWatcher(cfg.Model.Path, model, metrics, log)
		reloader = a.watcher
	}
	log.Info(ctx, "Model parameters loaded",
		logger.String("version", params.Version),
		logger.String("noise_mode", string(cfg.Prediction.Mode())),
	)

	// Repositories
	loanRepo := postgres.NewLoanRepository(a.db.DB(), log)
	checkRepo := postgres.NewCovenantCheckRepository(a.db.DB(), log)
	esgRepo := postgres.NewESGComplianceRepository(a.db.DB(), log)
	predictionRepo := postgres.NewPredictionRepository(a.db.DB(), log)

	// Application services
	predictor := application.NewPredictionService(
		domainservice.NewFeatureEngineer(nil),
		model,
		domainservice.NewExplainabilityEngine(nil),
		ledger.New(cfg.Ledger, log),
		metrics,
		log,
		application.PredictionServiceConfig{
			DefaultHorizons: cfg.Prediction.DefaultHorizons,
			LedgerTimeout:   cfg.Ledger.Timeout(),
		},
		nil,
	)
	oracle := application.NewRiskOracle(loanRepo, checkRepo, predictionRepo, cache, auditSvc, predictor, metrics, log,
		application.RiskOracleConfig{
			DefaultHorizons: cfg.Prediction.DefaultHorizons,
			PersistHistory:  cfg.Prediction.PersistHistory,
		})
	loans := appservice.NewLoanAppService(loanRepo, checkRepo, esgRepo, auditRepo, auditSvc, cache, metrics, log, nil)
	esgScores := appservice.NewESGAppService(loanRepo, esgRepo, auditSvc, log, nil)
	if cfg.Kafka.Enabled && cfg.Kafka.ChecksTopic != "" {
		a.checks = consumers.NewCovenantCheckConsumer(cfg.Kafka, loans, log)
	}

	// Rate limiting
	var limiter domainservice.RateLimiter
	if cfg.RateLimit.Enabled {
		bucket := ratelimit.FromRequestsPerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		if redisClient != nil {
			limiter, err = ratelimit.NewRedisRateLimiter(redisClient, bucket, ratelimit.RedisRateLimiterOptions{LocalFallback: true}, log)
			if err != nil {
				return nil, err
			}
		} else {
			a.localLimit = ratelimit.NewLocalRateLimiter(bucket, nil)
			limiter = a.localLimit
		}
	}

	// Interfaces
	httpChecks := map[string]handlers.Pinger{"database": a.db}
	grpcChecks := map[string]grpcserver.Pinger{"database": a.db}
	if a.redis != nil {
		httpChecks["redis"] = a.redis
		grpcChecks["redis"] = a.redis
	}

	a.router = httpserver.NewRouter(cfg, log, httpserver.Handlers{
		Health:     handlers.NewHealthHandler(httpChecks, log),
		Loan:       handlers.NewLoanHandler(loans, log),
		Prediction: handlers.NewPredictionHandler(oracle, cfg.Prediction.MaxHorizonDays, log),
		Model:      handlers.NewModelHandler(model, reloader, cfg.Prediction.Mode(), metrics, log),
		ESG:        handlers.NewESGHandler(esgScores, cfg.Prediction.MaxHorizonDays, log),
		Audit:      handlers.NewAuditHandler(loans, log),
	}, httpserver.Options{
		Tracer:      a.tracing.Tracer(),
		Metrics:     promMetrics,
		Gatherer:    reg,
		RateLimiter: limiter,
		Redis:       redisClient,
	})
	a.grpc = grpcserver.NewServer(cfg.Server.GRPCAddr(), log, limiter, grpcChecks)

	return a, nil
}

// run serves until ctx is cancelled or a server fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.router.Start)
	g.Go(a.grpc.Start)
	g.Go(func() error {
		a.grpc.WatchHealth(gctx, healthProbeInterval)
		return nil
	})
	if a.watcher != nil && a.cfg.Model.Watch {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.checks != nil {
		g.Go(func() error { return a.checks.Run(gctx) })
	}
	if a.localLimit != nil {
		g.Go(func() error {
			ticker := time.NewTicker(bucketIdleTimeout)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					a.localLimit.Cleanup(bucketIdleTimeout)
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info(context.Background(), "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.grpc.Stop(shutdownCtx)
		err := a.router.Stop(shutdownCtx)
		a.close(shutdownCtx)
		return err
	})

	err := g.Wait()
	if err != nil {
		a.log.Error(context.Background(), "Service stopped with error", err)
		return err
	}
	a.log.Info(context.Background(), "Service stopped")
	return nil
}

// close releases external connections. Safe on a partially built app.
func (a *app) close(ctx context.Context) {
	if a.checks != nil {
		if err := a.checks.Close(); err != nil {
			a.log.Warn(ctx, "failed to close covenant check consumer", logger.Err(err))
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Warn(ctx, "failed to close Kafka producer", logger.Err(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn(ctx, "failed to close Redis", logger.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn(ctx, "failed to close database", logger.Err(err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.log.Warn(ctx, "failed to flush traces", logger.Err(err))
		}
	}
}
