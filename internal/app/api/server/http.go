package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/docs"
	"github.com/fatflowers/yachtclub/internal/app/api/handlers"
	mw "github.com/fatflowers/yachtclub/internal/app/api/middleware"
	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/app/service/statistics"
	"github.com/fatflowers/yachtclub/internal/app/service/verification"
	cfgpkg "github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeParams struct {
	fx.In

	Engine       *gin.Engine
	Log          *zap.SugaredLogger
	Config       *cfgpkg.Config
	Registry     *registry.Registry
	Gateway      *ledger.Gateway
	Reconcile    *reconcile.Service
	Verification *verification.Service
	Statistics   *statistics.Service
	NotifLog     *notificationlog.Service
}

func registerRoutes(p routeParams) {
	r, log, cfg := p.Engine, p.Log, p.Config

	// Prometheus metrics
	if cfg.MetricsAddr != "" {
		prom := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			Subsystem: "yachtclub",
			Logger:    log,
		})
		prom.SetListenAddress(cfg.MetricsAddr)
		prom.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warnw("auth.jwt_secret not set, authenticated routes will reject every request")
	}
	walletAuth := mw.NewWalletAuth(cfg.Auth)
	terminalAuth := mw.NewTerminalAuth(cfg.Terminals)

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, p.Gateway, log)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterCheckoutRoutes(apiV1, cfg.TierDefinitions(), p.Reconcile, log)
	handlers.RegisterPaymentWebhookRoutes(apiV1.Group("/webhook"), p.Reconcile, log)
	handlers.RegisterMemberRoutes(apiV1, p.Registry, p.Verification, log)
	handlers.RegisterTerminalRoutes(apiV1.Group("/terminal", terminalAuth.Middleware(log)), p.Verification, log)

	// Wallet-authenticated routes; the registry decides what the caller may do.
	handlers.RegisterTransferRoutes(apiV1.Group("", walletAuth.Middleware(log)), p.Registry, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", walletAuth.Middleware(log)),
		p.Registry, p.Gateway, p.Reconcile, p.Statistics, p.NotifLog, log)
}

func runServer(lc fx.Lifecycle, shutdown fx.Shutdowner, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "err", err)
					_ = shutdown.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
