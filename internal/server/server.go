// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketplace/internal/cache"
	"marketplace/internal/config"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/notifications"
	"marketplace/internal/observability"
	"marketplace/internal/repository"
	"marketplace/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	registry *notifications.SessionRegistry
	bridge   notifications.Bridge
	delivery *notifications.Delivery

	content       *service.ContentService
	engagement    *service.EngagementDispatcher
	alerts        *service.AlertMatcher
	search        *service.SearchEngine
	subscriptions *service.SubscriptionService
	notifications *service.NotificationService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil: realtime fan-out then stays in-process.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)
	cache.SetClient(redisClient)

	stores := repository.NewContentStores(db)
	users := repository.NewUserRepository(db)
	comments := repository.NewCommentRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	favorites := repository.NewFavoriteRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	devices := repository.NewPushSubscriptionRepository(db)

	registry := notifications.NewSessionRegistry(middleware.TokenDecoder(cfg.JWTSecret), redisClient)
	bridge := notifications.NewBridge(redisClient)

	var push notifications.PushTransport = notifications.NoopPushTransport{}
	if cfg.PushEnabled() {
		push = notifications.NewWebPushTransport(notifications.WebPushConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			TTL:        time.Duration(cfg.PushTTLSeconds) * time.Second,
		})
	}
	delivery := notifications.NewDelivery(notificationRepo, devices, bridge, registry, push, notifications.DeliveryConfig{
		Workers:   cfg.DeliveryWorkers,
		QueueSize: cfg.DeliveryQueueSize,
	})

	alerts := service.NewAlertMatcher(subs, stores, users, repository.NewCatalogueRepository(db), delivery)
	engagement, err := service.NewEngagementDispatcher(stores, comments, repository.NewLikeRepository(db), favorites, users, alerts)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("marketplace-api"),
		registry:       registry,
		bridge:         bridge,
		delivery:       delivery,
		content:        service.NewContentService(stores, users, alerts),
		engagement:     engagement,
		alerts:         alerts,
		search: service.NewSearchEngine(stores, favorites, service.SearchConfig{
			DefaultLimit: cfg.SearchDefaultLimit,
			MaxLimit:     cfg.SearchMaxLimit,
			MaxWindow:    cfg.SearchMaxWindow,
		}),
		subscriptions: service.NewSubscriptionService(subs),
		notifications: service.NewNotificationService(notificationRepo, devices, delivery),
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "Marketplace API",
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s, nil
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return models.RespondWithError(c, fe.Code, &models.AppError{Message: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
		slog.String("path", c.Path()), observability.ErrAttr(err))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	// Public read routes
	api.Get("/search", s.SearchByKeyword)
	api.Get("/search/ranked", middleware.OptionalAuth, s.SearchRanked)
	api.Get("/content/:type/:id/comments", s.GetComments)
	api.Get("/content/:type/:id", middleware.OptionalAuth, s.GetContent)

	protected := api.Group("", middleware.AuthRequired, middleware.ContextMiddleware())

	content := protected.Group("/content")
	content.Post("/:type", s.PublishContent)
	// Specific /:id/:resource routes before the item itself
	content.Patch("/:type/:id/status", s.UpdateContentStatus)
	content.Post("/:type/:id/report", s.ReportContent)
	content.Post("/:type/:id/reactions", s.ReactToContent)
	content.Post("/:type/:id/comments", s.AddComment)
	content.Post("/:type/:id/favorite", s.AddFavorite)
	content.Delete("/:type/:id/favorite", s.RemoveFavorite)

	comments := protected.Group("/comments")
	comments.Post("/:id/reactions", s.ReactToComment)
	comments.Delete("/:id", s.RemoveComment)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.Get("/", s.ListSubscriptions)
	subscriptions.Post("/", s.CreateSubscription)
	subscriptions.Put("/:id", s.UpdateSubscription)
	subscriptions.Delete("/:id", s.DeleteSubscription)

	notes := protected.Group("/notifications")
	notes.Get("/", s.ListNotifications)
	notes.Get("/unseen", s.UnseenCount)
	notes.Post("/seen", s.MarkAllNotificationsSeen)
	notes.Post("/:id/seen", s.MarkNotificationSeen)

	devices := protected.Group("/push-subscriptions")
	devices.Post("/", s.RegisterDevice)
	devices.Delete("/", s.UnregisterDevice)

	protected.Post("/catalogues", s.PublishCatalogue)

	ws := app.Group("/ws", middleware.WebSocketAuthRequired, websocketUpgradeRequired)
	ws.Get("/notifications", s.NotificationsWebSocket())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without it the
// process runs with in-process fan-out, so a missing client does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
			"sessions": s.registry.Len(),
		},
		"time": time.Now(),
	})
}

// App exposes the configured fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start launches the background workers and blocks serving HTTP.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.delivery.Start()
	if err := s.registry.StartWiring(ctx, s.bridge); err != nil {
		middleware.Logger.Error("failed to start notification wiring", observability.ErrAttr(err))
	}
	go s.runExpirySweeper(ctx)

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// runExpirySweeper moves items past their end date to expired on every tick.
func (s *Server) runExpirySweeper(ctx context.Context) {
	interval := s.config.ExpirySweepInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *Server) sweepExpired(ctx context.Context) {
	n, err := s.content.ExpireSweep(ctx)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "expiry sweep failed", observability.ErrAttr(err))
		return
	}
	if n > 0 {
		middleware.Logger.InfoContext(ctx, "expired content swept", slog.Int64("count", n))
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", observability.ErrAttr(err))
		}
	}

	if err := s.registry.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error closing sessions", observability.ErrAttr(err))
	}

	if err := s.delivery.Stop(ctx); err != nil {
		middleware.Logger.Error("error draining notification delivery", observability.ErrAttr(err))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", observability.ErrAttr(cerr))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", observability.ErrAttr(rerr))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
