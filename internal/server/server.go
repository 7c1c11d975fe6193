package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payqr/internal/clock"
	"github.com/smallbiznis/payqr/internal/config"
	obslogger "github.com/smallbiznis/payqr/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payqr/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
	passbookdomain "github.com/smallbiznis/payqr/internal/passbook/domain"
	"github.com/smallbiznis/payqr/internal/verification"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Engine   *gin.Engine
	Clock    clock.Clock
	OrderSvc orderdomain.Service
	Source   passbookdomain.Source
	Verifier *verification.Verifier
}

type Server struct {
	log      *zap.Logger
	cfg      config.Config
	engine   *gin.Engine
	clock    clock.Clock
	orderSvc orderdomain.Service
	source   passbookdomain.Source
	verifier *verification.Verifier
}

func NewServer(p Params) *Server {
	return &Server{
		log:      p.Log.Named("server"),
		cfg:      p.Cfg,
		engine:   p.Engine,
		clock:    p.Clock,
		orderSvc: p.OrderSvc,
		source:   p.Source,
		verifier: p.Verifier,
	}
}

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORSMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")

	api.POST("/orders", s.HandleCreateOrder)
	api.GET("/orders", s.HandleListOrders)
	api.GET("/orders/:id/status", s.HandleCheckStatus)
	api.POST("/orders/:id/mark-paid", s.HandleMarkPaid)
	api.POST("/orders/:id/override", s.HandleAdminOverride)
	api.DELETE("/orders/:id", s.HandleDeleteOrder)
	api.DELETE("/orders", s.HandleDeleteAllOrders)

	api.GET("/passbook/status", s.HandlePassbookStatus)
	api.POST("/passbook/connect", s.HandlePassbookConnect)
	api.POST("/passbook/disconnect", s.HandlePassbookDisconnect)
	api.POST("/passbook/check-now", s.HandleCheckNow)

	api.POST("/webhook/credit", s.HandleWebhookCredit)
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
