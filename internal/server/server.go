package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/promptforge/backend/internal/api/http"
	"github.com/promptforge/backend/internal/api/middleware"
	"github.com/promptforge/backend/internal/api/ws"
	"github.com/promptforge/backend/internal/infrastructure/config"
	"github.com/promptforge/backend/internal/infrastructure/logging"
	"github.com/promptforge/backend/internal/infrastructure/monitoring"
	"github.com/promptforge/backend/internal/infrastructure/tracing"
	"github.com/promptforge/backend/internal/kernel"
	"github.com/promptforge/backend/internal/webhook"
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	router    *gin.Engine
	kernel    *kernel.Kernel
	bridge    *ws.Bridge
	forwarder *webhook.Forwarder
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Initializing PromptForge Kernel",
		zap.String("port", cfg.Server.Port),
		zap.String("apps_dir", cfg.Kernel.AppsDir),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("kernel", logger.Logger)

	k, err := kernel.New(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	// Discovery and state restore run before route registration so app
	// routers can mount below.
	k.Start(context.Background())

	bridge := ws.NewBridge(k.Bus, k.Replay, logger).
		WithMetrics(metrics).
		WithKeepalive(cfg.Stream.KeepaliveInterval).
		WithSendBuffer(cfg.Stream.SendBuffer)

	forwarder := webhook.NewForwarder(k.Bus, cfg.Webhooks.Targets, cfg.Webhooks.Timeout, logger)

	// The bridge subscribes immediately so replayed events accumulate even
	// before the listener is up.
	bridge.Start()
	forwarder.Start()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(k.Apps, k.Bus, k.Replay, k.Jobs, k.Guard, k.Audit, metrics).
		WithRequestTimeout(cfg.Kernel.RequestTimeout)
	if cfg.Kernel.PublishTokenHash != "" {
		handlers.WithPublishTokenHash(cfg.Kernel.PublishTokenHash)
	}

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// App lifecycle
	router.GET("/kernel/apps", handlers.ListApps)
	router.GET("/kernel/apps/:id", handlers.GetApp)
	router.GET("/kernel/apps/:id/status", handlers.GetAppStatus)
	router.GET("/kernel/apps/:id/usage", handlers.GetAppUsage)
	router.POST("/kernel/apps/:id/enable", handlers.EnableApp)
	router.POST("/kernel/apps/:id/disable", handlers.DisableApp)

	// Event bus
	router.GET("/kernel/bus/contracts", handlers.ListContracts)
	router.GET("/kernel/bus/subscriptions", handlers.ListSubscriptions)
	router.GET("/kernel/bus/stats", handlers.BusStats)
	router.POST("/kernel/bus/publish", handlers.PublishEvent)
	router.POST("/kernel/bus/request", handlers.BusRequest)
	router.GET("/kernel/bus/events", bridge.HandleConnection)
	router.GET("/kernel/bus/events/export", handlers.ExportEvents)

	// Jobs
	router.POST("/kernel/jobs/submit", handlers.SubmitJob)
	router.GET("/kernel/jobs", handlers.ListJobs)
	router.GET("/kernel/jobs/stats", handlers.JobStats)
	router.GET("/kernel/jobs/:id", handlers.GetJob)
	router.POST("/kernel/jobs/:id/cancel", handlers.CancelJob)

	// Introspection
	router.GET("/kernel/audit", handlers.ListAudit)
	router.GET("/kernel/tools", handlers.ListTools)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", handlers.MetricsSnapshot)

	// App routers mount last so a broken app cannot shadow kernel routes.
	k.Apps.MountRouters(router, nil)

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		kernel:    k,
		bridge:    bridge,
		forwarder: forwarder,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Kernel exposes the composition root, mainly for tests.
func (s *Server) Kernel() *kernel.Kernel { return s.kernel }

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves HTTP until the listener fails.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.forwarder.Stop()
	s.bridge.Stop()
	s.kernel.Close(context.Background())

	s.logger.Sync()
	return nil
}
