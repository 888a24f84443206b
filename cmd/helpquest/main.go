package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/okian/helpquest/internal/adapters/http/api"
	"github.com/okian/helpquest/internal/adapters/remote"
	"github.com/okian/helpquest/internal/adapters/remote/memory"
	"github.com/okian/helpquest/internal/adapters/remote/pgstore"
	"github.com/okian/helpquest/internal/adapters/remote/redisstore"
	service "github.com/okian/helpquest/internal/app"
	"github.com/okian/helpquest/internal/app/session"
	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/internal/config"
	"github.com/okian/helpquest/internal/domain/achievement"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "helpquest stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run serves until ctx is done, then shuts everything down in reverse order.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, closer, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warn(ctx, "closing remote store", logger.Error(err))
		}
	}()

	mgr := newManager(cfg, store, log)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mgr.Stop(stopCtx); err != nil {
			log.Warn(ctx, "manager stop", logger.Error(err))
		}
	}()

	go metrics.CollectSystem(ctx, systemMetricsInterval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(cfg, mgr, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("remote_backend", cfg.RemoteBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newManager builds the session manager and its sync coordinator.
func newManager(cfg *config.Config, store remote.Store, log logger.Logger) *service.Manager {
	coord := syncer.New(store,
		syncer.WithTimeout(cfg.SyncTimeout()),
		syncer.WithLeaderboardLimit(cfg.LeaderboardLimit),
		syncer.WithLogger(log.Named("syncer")),
	)
	engine := achievement.NewEngine(achievement.DefaultRegistry(),
		achievement.WithMaxPasses(cfg.MaxEvaluationPasses),
		achievement.WithLogger(log.Named("achievement")),
	)
	return service.New(coord,
		service.WithWorkerCount(cfg.SyncWorkerCount),
		service.WithQueueSize(cfg.SyncQueueSize),
		service.WithLogger(log.Named("manager")),
		service.WithSessionOptions(
			session.WithEngine(engine),
			session.WithHistoryLimit(cfg.HistoryLimit),
			session.WithDedupeSize(cfg.DedupeSize),
			session.WithLeaderboardLimit(cfg.LeaderboardLimit),
			session.WithLogger(log.Named("session")),
		),
	)
}

// newMux registers the API routes on a fresh mux.
func newMux(cfg *config.Config, mgr *service.Manager, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	srv := api.NewServer(mgr, mgr,
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithLogger(log.Named("api")),
	)
	srv.Register(mux)
	return mux
}

// openStore connects the configured remote backend. The returned closer
// releases its connections.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (remote.Store, io.Closer, error) {
	switch cfg.RemoteBackend {
	case config.BackendRedis:
		rc, err := redisConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		s, err := redisstore.Connect(ctx, rc, redisstore.WithLogger(log.Named("redisstore")))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendPostgres:
		s, err := pgstore.Connect(ctx, pgstore.DefaultConfig(cfg.PostgresDSN), pgstore.WithLogger(log.Named("pgstore")))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendMemory:
		log.Warn(ctx, "using in-memory remote store; game data is lost on restart")
		return memory.New(), io.NopCloser(nil), nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown remote_backend %q", config.ErrInvalidConfig, cfg.RemoteBackend)
	}
}

// redisConfig maps the flat redis settings onto the store configuration.
func redisConfig(cfg *config.Config) (redisstore.Config, error) {
	rc := redisstore.DefaultConfig()
	host, port, err := net.SplitHostPort(cfg.RedisAddr)
	if err != nil {
		return rc, fmt.Errorf("%w: redis_addr: %v", config.ErrInvalidConfig, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return rc, fmt.Errorf("%w: redis_addr port: %v", config.ErrInvalidConfig, err)
	}
	rc.Host = host
	rc.Port = p
	rc.Password = cfg.RedisPassword
	rc.DB = cfg.RedisDB
	if cfg.RedisKeyPrefix != "" {
		rc.KeyPrefix = cfg.RedisKeyPrefix
	}
	return rc, nil
}
