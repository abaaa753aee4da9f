package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chesssync/internal/config"
	"chesssync/internal/logging"
	"chesssync/internal/rules"
	"chesssync/internal/server/admin"
	chesshttp "chesssync/internal/server/http"
	"chesssync/internal/server/service"
	"chesssync/internal/server/storage"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	maxWriteBackoff         = 2 * time.Second

	// Fixed in dev mode so tokens survive restarts
	devTokenSecret = "dev-secret-minimum-32-characters-long"
)

type serveOptions struct {
	configPath  string
	host        string
	port        int
	dev         bool
	backend     string
	storagePath string
	kvURL       string
	logLevel    string
	logFormat   string
	pidPath     string
	pidLock     bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	bindServeFlags(cmd.Flags(), opts)
	return cmd
}

func bindServeFlags(f *pflag.FlagSet, opts *serveOptions) {
	f.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	f.StringVar(&opts.host, "api-host", "localhost", "API server host")
	f.IntVar(&opts.port, "api-port", 8080, "API server port")
	f.BoolVar(&opts.dev, "dev", false, "Development mode (relaxed rate limits, fixed token secret, access log)")
	f.StringVar(&opts.backend, "storage-backend", "", "Storage backend: memory, sqlite or redis (inferred when empty)")
	f.StringVar(&opts.storagePath, "storage-path", "", "Path to SQLite database file")
	f.StringVar(&opts.kvURL, "kv-url", "", "redis:// URL of the key-value store")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "json", "Log format: json or console")
	f.StringVar(&opts.pidPath, "pid", "", "Optional path to write PID file")
	f.BoolVar(&opts.pidLock, "pid-lock", false, "Lock PID file to allow only one instance (requires --pid)")
}

// loadConfig layers flags that were set explicitly over file and environment
func loadConfig(cmd *cobra.Command, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("api-host") {
		cfg.Server.Host = opts.host
	}
	if f.Changed("api-port") {
		cfg.Server.Port = opts.port
	}
	if f.Changed("dev") {
		cfg.Server.Dev = opts.dev
	}
	if f.Changed("storage-backend") {
		cfg.Storage.Backend = opts.backend
	}
	if f.Changed("storage-path") {
		cfg.Storage.Path = opts.storagePath
	}
	if f.Changed("kv-url") {
		cfg.Storage.URL = opts.kvURL
	}
	if f.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.pidLock && opts.pidPath == "" {
		return nil, fmt.Errorf("--pid-lock requires --pid")
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if opts.pidPath != "" {
		pf, err := acquirePIDFile(opts.pidPath, opts.pidLock)
		if err != nil {
			return fmt.Errorf("failed to manage PID file: %w", err)
		}
		defer pf.Release()
		logger.Info("PID file created", zap.String("path", opts.pidPath), zap.Bool("lock", opts.pidLock))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	games := storage.NewGameStore(b.repo, storage.RetryPolicy{
		Attempts:    cfg.Storage.WriteAttempts,
		Backoff:     cfg.Storage.WriteBackoff,
		MaxBackoff:  maxWriteBackoff,
		ReadTimeout: cfg.Storage.ReadTimeout,
	}, logger)
	defer func() {
		if err := games.Close(); err != nil {
			logger.Warn("failed to close storage cleanly", zap.Error(err))
		}
	}()

	svc := service.New(games, rules.NewChessEngine(), service.Config{MoveLog: b.moveLog}, logger)

	auth, err := newAuthenticator(cfg, b.sessions, logger)
	if err != nil {
		return err
	}

	app := chesshttp.NewFiberApp(svc, auth, chesshttp.AppConfig{
		Dev:         cfg.Server.Dev,
		RateLimit:   cfg.Server.RateLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
		AccessLog:   cfg.Server.Dev,
	}, logger)

	addr := cfg.Addr()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("chess API server starting",
			zap.String("addr", "http://"+addr),
			zap.String("storage", cfg.StorageBackend()),
			zap.Bool("dev", cfg.Server.Dev),
			zap.Bool("admin", auth.Configured()))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("API server listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		auth.RunCleanup(gctx, cfg.Admin.CleanupInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Release held long-polls before draining connections
		svc.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}

// backend bundles what one storage choice provides
type backend struct {
	repo     storage.Repository
	sessions storage.SessionRepository
	moveLog  storage.MoveLog // nil unless the backend keeps one
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend, error) {
	switch cfg.StorageBackend() {
	case config.BackendSQLite:
		logger.Info("initializing persistent storage", zap.String("path", cfg.Storage.Path))
		store, err := storage.NewStore(cfg.Storage.Path, cfg.Server.Dev, logger)
		if err != nil {
			return backend{}, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.InitDB(); err != nil {
			store.Close()
			return backend{}, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return backend{repo: store, sessions: store, moveLog: store}, nil

	case config.BackendRedis:
		logger.Info("connecting to key-value store", zap.String("key", cfg.Storage.Key))
		store, err := storage.NewRedisStore(ctx, cfg.Storage.URL, cfg.Storage.Token, cfg.Storage.Key, cfg.Storage.Prefix)
		if err != nil {
			return backend{}, fmt.Errorf("failed to connect to key-value store: %w", err)
		}
		return backend{repo: store, sessions: store}, nil

	default:
		logger.Warn("persistent storage disabled, the game resets on restart (set KV_URL or --storage-path)")
		store := storage.NewMemoryStore()
		return backend{repo: store, sessions: store}, nil
	}
}

func newAuthenticator(cfg *config.Config, sessions storage.SessionRepository, logger *zap.Logger) (*admin.Authenticator, error) {
	secret, err := tokenSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	auth, err := admin.New(cfg.Admin.Password, secret, cfg.Admin.TokenTTL, sessions, logger)
	if err != nil {
		return nil, err
	}
	if !auth.Configured() {
		logger.Warn("admin login disabled, set ADMIN_CHESS_PASSWORD to enable it")
	}
	return auth, nil
}

// tokenSecret picks the admin token signing key: configured, fixed in dev
// mode, otherwise random per process.
func tokenSecret(cfg *config.Config, logger *zap.Logger) ([]byte, error) {
	switch {
	case cfg.Admin.TokenSecret != "":
		return []byte(cfg.Admin.TokenSecret), nil
	case cfg.Server.Dev:
		logger.Info("using fixed token secret (dev mode)")
		return []byte(devTokenSecret), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	logger.Info("token secret generated, admin sessions valid until restart")
	return secret, nil
}
