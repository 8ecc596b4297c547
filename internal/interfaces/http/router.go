// Package http wires the gin engine: middleware, routes and the HTTP server lifecycle.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/covenantwatch/internal/config"
	"github.com/turtacn/covenantwatch/internal/domain/service"
	"github.com/turtacn/covenantwatch/internal/interfaces/http/handlers"
	"github.com/turtacn/covenantwatch/internal/interfaces/http/middleware"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/logger"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Health     *handlers.HealthHandler
	Loan       *handlers.LoanHandler
	Prediction *handlers.PredictionHandler
	Model      *handlers.ModelHandler
	ESG        *handlers.ESGHandler
	Audit      *handlers.AuditHandler
}

// Options carries the optional collaborators of the router. Zero values
// disable the matching feature.
type Options struct {
	Tracer      trace.Tracer
	Metrics     middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	RateLimiter service.RateLimiter
	Redis       redis.UniversalClient
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	config   *config.Config
	logger   logger.Logger
	handlers Handlers
	opts     Options
	server   *http.Server
}

// NewRouter 创建路由器并注册全部路由
func NewRouter(cfg *config.Config, log logger.Logger, h Handlers, opts Options) *Router {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := &Router{
		engine:   gin.New(),
		config:   cfg,
		logger:   log.WithComponent("Router"),
		handlers: h,
		opts:     opts,
	}
	r.setupRoutes()
	r.server = &http.Server{
		Addr:              cfg.Server.HTTPAddr(),
		Handler:           r.engine,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return r
}

func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Actor())
	if r.opts.Tracer != nil {
		r.engine.Use(middleware.Observability(r.opts.Tracer, r.opts.Metrics))
	}
	r.engine.Use(middleware.Logging(r.logger))
	r.engine.Use(cors.New(corsConfig(r.config.Server.CORSOrigins)))

	// 健康检查路由
	r.engine.GET("/health/live", r.handlers.Health.LivenessCheck)
	r.engine.GET("/health/ready", r.handlers.Health.ReadinessCheck)

	if r.config.Monitoring.MetricsEnabled {
		gatherer := r.opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		path := r.config.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	if r.config.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	idempotent := middleware.Idempotency(r.opts.Redis, &r.config.Idempotency, r.logger)

	v1 := r.engine.Group("/api/v1")
	{
		loans := v1.Group("/loans")
		{
			loans.POST("", idempotent, r.handlers.Loan.CreateLoan)
			loans.GET("", r.handlers.Loan.ListLoans)
			loans.GET("/:loan_id", r.handlers.Loan.GetLoan)
			loans.PATCH("/:loan_id/status", r.handlers.Loan.UpdateStatus)
			loans.GET("/:loan_id/state", r.handlers.Loan.GetTwinState)
			loans.POST("/:loan_id/covenant-checks", idempotent, r.handlers.Loan.RecordCovenantCheck)
			loans.GET("/:loan_id/covenant-checks", r.handlers.Loan.ListCovenantChecks)
			loans.POST("/:loan_id/esg-compliance", idempotent, r.handlers.Loan.RecordESGCompliance)
			loans.GET("/:loan_id/audit", r.handlers.Loan.AuditTrail)
		}

		predictions := v1.Group("/predictions")
		predictions.Use(middleware.RateLimit(r.opts.RateLimiter, r.logger))
		{
			predictions.GET("/:loan_id", r.handlers.Prediction.AssessLoan)
			predictions.GET("/:loan_id/covenant/:covenant_id", r.handlers.Prediction.AssessCovenant)
			predictions.GET("/:loan_id/explainability", r.handlers.Prediction.Explain)
			predictions.GET("/:loan_id/history", r.handlers.Prediction.History)
		}

		esg := v1.Group("/esg")
		{
			esg.GET("/:loan_id/score", r.handlers.ESG.Score)
			esg.GET("/:loan_id/compliance", r.handlers.ESG.ComplianceSummary)
			esg.GET("/:loan_id/breach-risk", r.handlers.ESG.BreachRisk)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/events/types", r.handlers.Audit.EventTypes)
			audit.GET("/:loan_id/summary", r.handlers.Audit.Summary)
		}

		v1.GET("/model", middleware.ETag(), r.handlers.Model.GetModel)
	}

	// 内部接口，供训练流水线发布模型参数
	internal := r.engine.Group("/_internal")
	{
		internal.PUT("/model", r.handlers.Model.PublishParameters)
		internal.POST("/model/reload", r.handlers.Model.ReloadParameters)
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", constants.HeaderRequestID, constants.HeaderActor, constants.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders: []string{constants.HeaderRequestID, "ETag", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Engine exposes the gin engine, mainly for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}
