// Package server assembles the Fiber application from configuration.
package server

import (
	"context"
	"fmt"
	"time"

	"trash2action-backend/internal/config"
	"trash2action-backend/internal/database"
	"trash2action-backend/internal/discord"
	"trash2action-backend/internal/handler"
	"trash2action-backend/internal/metrics"
	"trash2action-backend/internal/middleware"
	"trash2action-backend/internal/repository"
	"trash2action-backend/internal/repository/memory"
	"trash2action-backend/internal/retention"
	"trash2action-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const slowRequestThreshold = 500 * time.Millisecond

// Stores bundles the persistence backends the services run on.
type Stores struct {
	Directory     service.Directory
	Conversations service.ConversationStore
	Notifications service.NotificationStore
	// DB is nil for the in-memory backend.
	DB handler.Pinger

	close func()
}

// Close releases the backing connection pool, if any.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// MemoryStores returns empty in-memory stores around directory.
func MemoryStores(directory *memory.Directory) *Stores {
	return &Stores{
		Directory:     directory,
		Conversations: memory.NewConversationStore(),
		Notifications: memory.NewNotificationStore(),
	}
}

// PostgresStores wraps an open pool.
func PostgresStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Directory:     repository.NewIdentityRepository(pool),
		Conversations: repository.NewChatRepository(pool),
		Notifications: repository.NewNotificationRepository(pool),
		DB:            pool,
		close:         pool.Close,
	}
}

// OpenStores connects the backend selected by cfg.Store. Postgres migrations
// are applied before returning.
func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		directory := memory.NewDirectory()
		if cfg.SeedFile != "" {
			var err error
			directory, err = memory.LoadDirectory(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
		}
		log.Warn().Str("seed", cfg.SeedFile).Msg("using in-memory store, data is lost on restart")
		return MemoryStores(directory), nil

	case config.StorePostgres:
		pool, err := database.NewPool(ctx, log, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.RunMigrations(ctx, log, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return PostgresStores(pool), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Server is the assembled application.
type Server struct {
	App           *fiber.App
	Gateway       *service.Gateway
	Chat          *service.ChatService
	Notifications *service.NotificationService
	Tokens        *service.TokenService

	cfg       *config.Config
	log       zerolog.Logger
	relay     *discord.Relay
	retention *retention.Runner
	cancel    context.CancelFunc
}

// Options carries collaborators that tests replace.
type Options struct {
	Registry *prometheus.Registry
	Relay    *discord.Relay
	// Sinks receive every stored notification in addition to Relay.
	Sinks []service.NotificationSink
}

// New wires services and routes on top of stores.
func New(cfg *config.Config, log zerolog.Logger, stores *Stores, opts Options) (*Server, error) {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	registry := service.NewRegistry()
	gateway := service.NewGateway(log, registry, m, service.GatewayOptions{
		SendBuffer: cfg.Gateway.SendBuffer,
		EventRate:  cfg.Gateway.EventRate,
		EventBurst: cfg.Gateway.EventBurst,
		TypingTTL:  cfg.Gateway.TypingTTL,
	})
	tokens := service.NewTokenService(cfg.JWTSecret)

	chat := service.NewChatService(log, stores.Conversations, stores.Directory, gateway, gateway, m, cfg.Chat.MaxMessageLength)

	sinks := append([]service.NotificationSink(nil), opts.Sinks...)
	if opts.Relay != nil {
		sinks = append(sinks, opts.Relay)
	}
	notifications := service.NewNotificationService(log, stores.Notifications, stores.Directory, gateway, m, cfg.Chat.NotificationListLimit, sinks...)

	s := &Server{
		Gateway:       gateway,
		Chat:          chat,
		Notifications: notifications,
		Tokens:        tokens,
		cfg:           cfg,
		log:           log,
		relay:         opts.Relay,
	}

	if cfg.Retention.Enabled {
		runner, err := retention.NewRunner(log, notifications, cfg.Retention.Cron, cfg.Retention.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		s.retention = runner
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger(log, slowRequestThreshold))
	app.Use(cors.New())

	// Health
	healthH := handler.NewHealthHandler(stores.DB, cfg.Store)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)
	app.Get("/status", healthH.Status)
	app.Get("/connection-check", healthH.ConnectionCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// API v1
	v1 := app.Group("/api/v1")

	// Server-to-server, registered BEFORE the protected group
	server := v1.Group("/server", middleware.ServerKey(cfg.ServerKey))
	serverH := handler.NewServerHandler(log, notifications)
	server.Post("/notifications", serverH.CreateNotification)

	// Admin, registered BEFORE the protected group
	admin := v1.Group("/admin", middleware.AdminKey(cfg.AdminKey))
	adminH := handler.NewAdminHandler(gateway)
	admin.Get("/stats", adminH.Stats)
	admin.Post("/announce", adminH.Announce)

	// JWT-protected routes (catch-all, must be LAST)
	protected := v1.Group("", middleware.Auth(tokens))

	convH := handler.NewConversationHandler(log, chat)
	protected.Get("/conversations", convH.List)
	messages := protected.Group("/messages")
	messages.Get("/:conversation", convH.Messages)
	messages.Post("/:conversation", middleware.RateLimit(60, time.Minute), convH.Send)
	messages.Put("/:conversation/read", convH.MarkRead)

	notifH := handler.NewNotificationHandler(log, notifications)
	notifs := protected.Group("/notifications")
	notifs.Get("/", notifH.List)
	notifs.Put("/mark-all-read", notifH.MarkAllRead)
	notifs.Put("/:id/read", notifH.MarkRead)
	notifs.Delete("/:id", notifH.Delete)

	// WebSocket
	wsH := handler.NewWSHandler(log, gateway, tokens, cfg.Gateway.ReadTimeout)
	app.Get("/ws", wsH.Upgrade)

	s.App = app
	return s, nil
}

// Start launches background workers. Listening is left to the caller.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.retention != nil {
		s.retention.Start(ctx)
	}
	if err := s.relay.Start(); err != nil {
		s.log.Warn().Err(err).Msg("discord relay unavailable")
	}
	return nil
}

// Shutdown stops accepting requests, closes every live connection and stops
// background workers.
func (s *Server) Shutdown(timeout time.Duration) error {
	err := s.App.ShutdownWithTimeout(timeout)
	s.Gateway.Shutdown()
	if s.cancel != nil {
		s.cancel()
	}
	s.relay.Stop()
	return err
}
