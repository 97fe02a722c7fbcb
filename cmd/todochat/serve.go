// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/todochat/internal/auth"
	authpg "github.com/holomush/todochat/internal/auth/postgres"
	"github.com/holomush/todochat/internal/chat"
	"github.com/holomush/todochat/internal/config"
	"github.com/holomush/todochat/internal/logging"
	"github.com/holomush/todochat/internal/observability"
	"github.com/holomush/todochat/internal/ratelimit"
	"github.com/holomush/todochat/internal/store"
	"github.com/holomush/todochat/internal/web"
	"github.com/holomush/todochat/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat rooms",
		Long: `Serve the admin and public chat rooms over WebSocket, the system
message trigger, and the recent messages API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a signal
// arrives. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = store.Connect
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = newStoreMigrator
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if deps.LoggerFactory == nil {
		deps.LoggerFactory = setupLogging
	}

	cfg, err := deps.ConfigLoader(config.Options{ConfigFile: configFile, Flags: cmd.Flags()})
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load configuration").Wrap(err)
	}

	logger, err := deps.LoggerFactory(cfg.Log)
	if err != nil {
		return err
	}

	logger.Info("starting todochat",
		"addr", cfg.Server.Addr,
		"store_driver", cfg.Store.Driver,
		"metrics_addr", cfg.Server.MetricsAddr,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ready atomic.Bool
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer := deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, ready.Load)
		chat.RegisterMetrics(obsServer.Registry())
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		defer stopWithTimeout(logger, "observability server", cfg.Server.ShutdownTimeout, obsServer.Stop)
		metrics = obsServer.Metrics()
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	retryCfg := store.RetryConfig{Retries: cfg.Store.ConnectRetries, Backoff: cfg.Store.ConnectBackoff}

	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		if cfg.Store.AutoMigrate {
			if err := autoMigrate(deps.MigratorFactory, cfg.Store.DatabaseURL, logger); err != nil {
				return err
			}
		}
		pool, err = deps.PoolFactory(ctx, cfg.Store.DatabaseURL, retryCfg)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		defer pool.Close()
		logger.Info("connected to database")
	}

	messages, closeStore, err := openMessageStore(ctx, cfg, pool, retryCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	authz, err := newAuthorizer(cfg, pool, logger)
	if err != nil {
		return err
	}

	limiter, closeLimiter := newPostLimiter(cfg, metrics, logger)
	defer closeLimiter()

	encoder := chat.NewEncoder(chat.PublicBucketResolver(cfg.Chat.AvatarBaseURL))
	var hubs []*chat.Hub
	for _, room := range []chat.RoomKind{chat.RoomAdmin, chat.RoomPublic} {
		hub, err := chat.NewHub(chat.HubConfig{
			Room:         room,
			Store:        messages,
			Authorizer:   authz,
			Encoder:      encoder,
			Limiter:      limiter,
			Logger:       logger,
			StoreTimeout: cfg.Chat.StoreTimeout,
			QueueSize:    cfg.Chat.QueueSize,
		})
		if err != nil {
			return err
		}
		hubs = append(hubs, hub)
	}
	rooms, err := chat.NewRooms(hubs...)
	if err != nil {
		return err
	}

	server, err := web.NewServer(web.Config{
		Rooms:          rooms,
		Store:          messages,
		Encoder:        encoder,
		Metrics:        metrics,
		Logger:         logger,
		CookieName:     cfg.Auth.CookieName,
		TriggerToken:   cfg.Chat.TriggerToken,
		StoreTimeout:   cfg.Chat.StoreTimeout,
		AllowedOrigins: cfg.Websocket.AllowedOrigins,
		Websocket: web.WebsocketConfig{
			WriteTimeout:    cfg.Websocket.WriteTimeout,
			PongTimeout:     cfg.Websocket.PongTimeout,
			PingInterval:    cfg.Websocket.PingInterval,
			MaxMessageBytes: cfg.Websocket.MaxMessageBytes,
			SendBuffer:      cfg.Websocket.SendBuffer,
		},
	})
	if err != nil {
		return err
	}

	hubCtx, stopHubs := context.WithCancel(context.Background())
	defer stopHubs()
	hubsDone := make(chan error, 1)
	go func() { hubsDone <- rooms.Run(hubCtx) }()

	webErrCh, err := server.Start(cfg.Server.Addr)
	if err != nil {
		stopHubs()
		<-hubsDone
		return err
	}
	ready.Store(true)

	if cfg.Chat.TriggerToken == "" {
		logger.Warn("system message trigger is not protected; set " + config.EnvTriggerToken)
	}
	cmd.Println("todochat started")
	logger.Info("todochat ready", "addr", server.Addr())
	if deps.OnReady != nil {
		deps.OnReady(server.Addr())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-webErrCh:
		if ok && err != nil {
			serveErr = oops.Code("WEB_SERVE_FAILED").Wrap(err)
		}
	}
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	// Stopping the hubs closes every session and flushes pending writes.
	stopHubs()
	if err := <-hubsDone; err != nil {
		errutil.LogError(logger, "chat hubs stopped with error", err)
	}
	if err := server.Wait(shutdownCtx); err != nil {
		logger.Warn("websocket connections did not close in time", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// setupLogging configures and installs the default slog logger.
func setupLogging(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault("todochat", version, logging.Options{Format: cfg.Format, Level: level}), nil
}

// autoMigrate applies pending migrations before the pool is opened.
func autoMigrate(factory func(string) (Migrator, error), databaseURL string, logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// openMessageStore selects the message store for cfg.Store.Driver.
func openMessageStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, retryCfg store.RetryConfig) (chat.MessageStore, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if pool == nil {
			return nil, noop, oops.Code("CONFIG_INVALID").Errorf("postgres store requires %s", config.EnvDatabaseURL)
		}
		return store.NewPostgresMessageStore(pool), noop, nil
	case config.DriverRedis:
		rs, err := store.NewRedisMessageStore(ctx, cfg.Store.RedisURL, cfg.Store.RedisMaxLen, retryCfg)
		if err != nil {
			return nil, noop, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
		}
		return rs, func() { closeQuietly(rs, "redis message store") }, nil
	case config.DriverMemory:
		return chat.NewMemoryMessageStore(), noop, nil
	default:
		return nil, noop, oops.Code("CONFIG_INVALID").Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newAuthorizer resolves session tokens against the database. Without a
// database nobody can sign in; the public room still admits guests.
func newAuthorizer(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (chat.Authorizer, error) {
	if pool == nil {
		logger.Warn("no database configured; only guests can join")
		return chat.AuthorizerFunc(func(context.Context, chat.Credentials) (chat.Identity, error) {
			return chat.Identity{}, chat.ErrUnauthenticated
		}), nil
	}
	admins, err := auth.NewAdminMatcher(cfg.Auth.AdminEmails)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthorizer(
		authpg.NewWebSessionRepository(pool),
		authpg.NewUserRepository(pool),
		admins,
		logger,
	)
}

// newPostLimiter returns the per-session post limiter, or nil when rate
// limiting is disabled.
func newPostLimiter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (chat.Limiter, func()) {
	if !cfg.RateLimited() {
		return nil, func() {}
	}
	limiterCfg := ratelimit.Config{Burst: cfg.Chat.RateBurst, Rate: cfg.Chat.RatePerSecond}
	if metrics != nil {
		limiterCfg.Gauge = metrics.RateLimitBuckets
	}
	logger.Info("post rate limiting enabled", "burst", cfg.Chat.RateBurst, "rate_per_second", cfg.Chat.RatePerSecond)
	rl := ratelimit.New(limiterCfg)
	return rl, rl.Close
}

func closeQuietly(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		slog.Debug("error closing "+name, "error", err)
	}
}

func stopWithTimeout(logger *slog.Logger, name string, timeout time.Duration, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping "+name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
