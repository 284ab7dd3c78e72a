package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codeblocks/internal/api"
	"codeblocks/internal/broker"
	"codeblocks/internal/config"
	"codeblocks/internal/database"
	"codeblocks/internal/exercise"
	"codeblocks/internal/hub"
	"codeblocks/internal/logging"
	"codeblocks/internal/roles"
	"codeblocks/internal/router"
	"codeblocks/internal/snapshot"
	"codeblocks/internal/websocket"
	pkgdatabase "codeblocks/pkg/database"
	"codeblocks/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	logger      *zap.SugaredLogger
	dbManager   interfaces.DatabaseManager
	catalog     *exercise.Catalog
	roles       *roles.Service
	broker      broker.Broker
	channelHub  *hub.Hub
	registry    *websocket.Registry
	router      *router.Router
	snapshotJob *snapshot.Job
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Catalog → Roles → Broker → Hub → Registry → Router → API → HTTP
// A nil logger is built from the logging section of cfg.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if logger == nil {
		l, err := logging.New(cfg.Logging.Env)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	policy, err := roles.ParsePolicy(cfg.Roles.Policy)
	if err != nil {
		return nil, err
	}

	// STEP 1: Initialize database manager (foundation layer), migrations included
	dbConfig := &pkgdatabase.Config{
		Driver:          cfg.Database.Driver,
		DatabasePath:    cfg.Database.Path,
		DSN:             cfg.Database.DSN,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.Open(ctx, dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Exercise catalog, seeded from file when configured
	catalog := exercise.NewCatalog(dbManager, logger)
	if cfg.SeedFile != "" {
		n, err := catalog.Seed(ctx, cfg.SeedFile)
		if err != nil {
			_ = dbManager.Close()
			return nil, fmt.Errorf("failed to seed exercises: %w", err)
		}
		logger.Infow("exercises seeded", "count", n, "file", cfg.SeedFile)
	}
	if err := catalog.Load(ctx); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to load exercises: %w", err)
	}

	// STEP 3: Role assignment service
	roleService := roles.NewService(dbManager, catalog, policy, logger)

	// STEP 4: Broker between hub instances
	var b broker.Broker
	switch cfg.Broker.Kind {
	case config.BrokerRedis:
		b, err = broker.NewRedis(ctx, &redis.Options{
			Addr:     cfg.Broker.RedisAddr,
			Password: cfg.Broker.RedisPassword,
			DB:       cfg.Broker.RedisDB,
		}, logger)
		if err != nil {
			_ = dbManager.Close()
			return nil, err
		}
	default:
		b = broker.NewMemory()
	}

	// STEP 5: Hub, registry and router for the real-time channel
	channelHub := hub.NewHub(catalog, b, logger)
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter(channelHub, registry, cfg.RateLimit.PerMinute, logger)

	wsHandler := websocket.NewHandler(registry, messageRouter, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	}, logger)

	// STEP 6: Snapshot persistence
	snapshotJob := snapshot.NewJob(channelHub, dbManager, messageRouter.RateLimiter(), cfg.Snapshot.Schedule, logger)

	// STEP 7: API server with the websocket endpoint mounted
	apiServer := api.NewServer(catalog, roleService, dbManager, registry, channelHub,
		http.HandlerFunc(wsHandler.HandleWebSocket), logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		logger:      logger,
		dbManager:   dbManager,
		catalog:     catalog,
		roles:       roleService,
		broker:      b,
		channelHub:  channelHub,
		registry:    registry,
		router:      messageRouter,
		snapshotJob: snapshotJob,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to handle publishes, then the snapshot job, then HTTP accepts connections
func (app *Application) Start(ctx context.Context) error {
	if err := app.channelHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	if err := app.snapshotJob.Start(); err != nil {
		_ = app.channelHub.Stop()
		return fmt.Errorf("failed to start snapshot job: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.snapshotJob.Stop(ctx)
		_ = app.channelHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Errorw("HTTP server error", "error", err)
		}
	}()

	app.logger.Infow("codeblocks started", "addr", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → connections → Hub → final snapshot → Broker → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Infow("shutting down codeblocks")

	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// hijacked websocket connections are not tracked by Shutdown
	app.registry.CloseAll()

	if err := app.channelHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	if err := app.snapshotJob.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("snapshot flush: %w", err))
	}

	if err := app.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("broker shutdown: %w", err))
	}

	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	app.logger.Infow("codeblocks shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections; after Start
// it is the bound address, so port 0 resolves to the real port
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP handler for in-process servers
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Hub exposes the channel hub
func (app *Application) Hub() *hub.Hub {
	return app.channelHub
}

// ShutdownTimeout bounds graceful shutdown from the CLI
const ShutdownTimeout = 10 * time.Second
