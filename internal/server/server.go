package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/astraops/paygate/internal/billing"
	billingdomain "github.com/astraops/paygate/internal/billing/domain"
	"github.com/astraops/paygate/internal/config"
	"github.com/astraops/paygate/internal/feature"
	"github.com/astraops/paygate/internal/modelcatalog"
	"github.com/astraops/paygate/internal/observability"
	obsmiddleware "github.com/astraops/paygate/internal/observability/logger"
	obsmetrics "github.com/astraops/paygate/internal/observability/metrics"
	obstracing "github.com/astraops/paygate/internal/observability/tracing"
	"github.com/astraops/paygate/internal/paypal"
	"github.com/astraops/paygate/internal/tier"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	billing.Module,
	feature.Module,
	modelcatalog.Module,
	paypal.Module,
	tier.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	billingSvc billingdomain.Service
	tiers      *tier.Catalog
	models     *modelcatalog.Catalog
	flags      *feature.Service
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	BillingSvc billingdomain.Service
	Tiers      *tier.Catalog
	Models     *modelcatalog.Catalog
	Flags      *feature.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		billingSvc: p.BillingSvc,
		tiers:      p.Tiers,
		models:     p.Models,
		flags:      p.Flags,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- PayPal --------
	api.POST("/paypal/webhook", s.HandlePayPalWebhook)
	api.GET("/paypal/success", s.HandlePayPalSuccess)
	api.GET("/paypal/cancel", s.HandlePayPalCancel)

	// -------- Billing --------
	api.POST("/billing/checkout", s.StartCheckout)
	api.GET("/billing/subscriptions/:userId", s.GetSubscriptionByUser)

	// -------- Tiers --------
	api.GET("/tiers", s.ListTiers)
	api.GET("/tiers/:id", s.GetTierByID)

	// -------- Models --------
	api.GET("/models", s.ListModels)

	// -------- Feature Flags --------
	api.GET("/flags", s.ListFlags)
	api.GET("/flags/:name", s.GetFlag)
	api.PUT("/flags/:name", s.SetFlag)
	api.DELETE("/flags/:name", s.DeleteFlag)
}
