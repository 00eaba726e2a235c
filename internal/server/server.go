package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/edupoints/internal/analytics"
	analyticsdomain "github.com/smallbiznis/edupoints/internal/analytics/domain"
	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/observability"
	obsmiddleware "github.com/smallbiznis/edupoints/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/edupoints/internal/observability/metrics"
	obstracing "github.com/smallbiznis/edupoints/internal/observability/tracing"
	pointsdomain "github.com/smallbiznis/edupoints/internal/points/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	analytics.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// Server exposes read-only admin views over the points economy.
type Server struct {
	engine       *gin.Engine
	db           *gorm.DB
	pointsSvc    pointsdomain.Service
	analyticsSvc analyticsdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	DB           *gorm.DB
	PointsSvc    pointsdomain.Service
	AnalyticsSvc analyticsdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		db:           p.DB,
		pointsSvc:    p.PointsSvc,
		analyticsSvc: p.AnalyticsSvc,
	}

	svc.registerProbeRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerProbeRoutes() {
	s.engine.GET("/health", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/points")

	admin.GET("/summary", s.GetPointsSummary)

	fraud := admin.Group("/fraud")
	{
		fraud.GET("/summary", s.GetFraudSummary)
		fraud.GET("/review-queue", s.ListReviewQueue)
	}

	users := admin.Group("/users/:user_id")
	{
		users.GET("/balance", s.GetUserBalance)
		users.GET("/transactions", s.ListUserTransactions)
		users.GET("/reconcile", s.ReconcileUser)
		users.GET("/fraud", s.ListUserFraudHistory)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// Health pings the store so a dead database shows up on the probe.
func (s *Server) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status = http.StatusServiceUnavailable
			body = gin.H{"status": "degraded", "database": "unreachable"}
		}
	}
	c.JSON(status, body)
}
