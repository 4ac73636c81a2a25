package main

//	@title						driftwatch API
//	@version					0.1.0
//	@description				Streaming anomaly detection over metric streams.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token, sent as "Bearer {token}".

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/driftwatch/driftwatch/api/swagger"
	"github.com/driftwatch/driftwatch/internal/auth"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/dashboard"
	"github.com/driftwatch/driftwatch/internal/detect"
	"github.com/driftwatch/driftwatch/internal/event"
	"github.com/driftwatch/driftwatch/internal/registry"
	"github.com/driftwatch/driftwatch/internal/seed"
	"github.com/driftwatch/driftwatch/internal/server"
	"github.com/driftwatch/driftwatch/internal/source"
	"github.com/driftwatch/driftwatch/internal/store"
	"github.com/driftwatch/driftwatch/internal/version"
	"github.com/driftwatch/driftwatch/internal/webhook"
	"github.com/driftwatch/driftwatch/internal/ws"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	// Subcommands parse their own flag sets, so dispatch before flag.Parse.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	// Config first, logger second: level and format come from the config.
	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("driftwatch server starting", zap.String("version", version.Short()))
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("config file loaded", zap.String("component", "config"), zap.String("source", f))
	} else {
		logger.Warn("no config file found, using defaults", zap.String("component", "config"))
	}

	db := openStore(v, logger)
	defer db.Close()

	cfg := config.New(v)
	events := event.NewBus(logger.Named("event"))
	plugins := registry.New(logger.Named("registry"))

	// Compile-time plugin composition. Order here does not matter; the
	// registry derives start order from each plugin's declared dependencies.
	for _, m := range []plugin.Plugin{source.New(), detect.New(), webhook.New()} {
		if err := plugins.Register(m); err != nil {
			logger.Fatal("plugin registration failed", zap.Error(err))
		}
	}
	if err := plugins.Validate(); err != nil {
		logger.Fatal("plugin graph is invalid", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := plugins.InitAll(ctx, pluginDeps(cfg, logger, db, events, plugins)); err != nil {
		logger.Fatal("plugin init failed", zap.Error(err))
	}

	demoMode := v.GetBool("server.demo_mode")
	if demoMode {
		// Seed after migrations but before the scheduler's first tick, so a
		// demo instance has data the moment the dashboard loads.
		err := seed.SeedDemoStreams(ctx, source.NewSourceStore(db.DB()), detect.NewDetectStore(db.DB()))
		if err != nil {
			logger.Warn("demo seeding failed", zap.String("component", "seed"), zap.Error(err))
		} else {
			logger.Info("demo data seeded", zap.String("component", "seed"))
		}
	}

	if err := plugins.StartAll(ctx); err != nil {
		logger.Fatal("plugin start failed", zap.Error(err))
	}

	tokens, authHandler, err := buildAuth(ctx, v, db, logger)
	if err != nil {
		logger.Fatal("failed to initialize auth", zap.Error(err))
	}

	// Demo instances serve every read without login and reject every write.
	var authRegistrar server.RouteRegistrar = authHandler
	if demoMode {
		authRegistrar = &demoRegistrar{inner: authHandler}
		logger.Info("demo mode enabled: read-only API with synthetic viewer claims",
			zap.String("component", "auth"))
	}

	wsHandler := ws.NewHandler(tokens, events, logger.Named("ws"))

	srvCfg := server.Config{
		Host:    v.GetString("server.host"),
		Port:    v.GetInt("server.port"),
		DataDir: v.GetString("server.data_dir"),
	}
	ping := server.ReadinessChecker(func(ctx context.Context) error { return db.DB().PingContext(ctx) })
	srv := server.New(srvCfg.Addr(), plugins, logger, ping, authRegistrar,
		dashboard.Handler(), v.GetBool("server.dev_mode"), wsHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("driftwatch server ready", zap.String("addr", srvCfg.Addr()))

	// Plain-text banner for anyone tailing docker logs rather than shipping
	// JSON to an aggregator.
	fmt.Fprintf(os.Stderr, "\n  driftwatch %s is ready!\n  Open http://localhost:%d in your browser.\n\n",
		version.Short(), srvCfg.Port)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()

	plugins.StopAll(drainCtx)
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	logger.Info("driftwatch server stopped")
}

// openStore opens the SQLite database named in the config and refuses to
// proceed when the file was created by a newer driftwatch binary, before
// any migration can touch it.
func openStore(v *viper.Viper, logger *zap.Logger) *store.SQLiteStore {
	dbPath := v.GetString("database.path")
	if dbPath == "" {
		dbPath = "driftwatch.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("cannot open database", zap.Error(err))
	}
	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database ready", zap.String("component", "database"), zap.String("path", dbPath))
	return db
}

// pluginDeps builds the dependency set the registry hands to each plugin's
// Init. The config view is scoped per plugin, so no plugin can read a
// sibling's section.
func pluginDeps(cfg plugin.Config, logger *zap.Logger, db *store.SQLiteStore, events *event.Bus, plugins *registry.Registry) func(name string) plugin.Dependencies {
	return func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     events,
			Plugins: plugins,
		}
	}
}

// buildAuth wires the user store, token service, and HTTP handler. Without
// auth.jwt_secret in the config an ephemeral random secret is generated,
// which works fine for trying driftwatch out but ties session lifetime to
// process lifetime.
func buildAuth(ctx context.Context, v *viper.Viper, db *store.SQLiteStore, logger *zap.Logger) (*auth.TokenService, *auth.Handler, error) {
	users, err := auth.NewUserStore(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("init user store: %w", err)
	}
	if err := users.CleanExpiredTokens(ctx); err != nil {
		logger.Warn("failed to clean expired refresh tokens", zap.Error(err))
	}

	secret := v.GetString("auth.jwt_secret")
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		logger.Info("generated ephemeral JWT secret; set auth.jwt_secret to keep sessions across restarts",
			zap.String("component", "auth"))
	}

	accessTTL := durationOr(v, "auth.access_token_ttl", 15*time.Minute)
	refreshTTL := durationOr(v, "auth.refresh_token_ttl", 7*24*time.Hour)

	tokens := auth.NewTokenService([]byte(secret), accessTTL, refreshTTL)
	svc := auth.NewService(users, tokens, logger.Named("auth"))
	logger.Info("auth stack ready", zap.String("component", "auth"),
		zap.Duration("access_token_ttl", accessTTL), zap.Duration("refresh_token_ttl", refreshTTL))
	return tokens, auth.NewHandler(svc, logger.Named("auth")), nil
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	if d := v.GetDuration(key); d != 0 {
		return d
	}
	return def
}

// demoRegistrar swaps the auth middleware for demo deployments: routes
// register unchanged, but requests carry synthetic viewer claims instead of
// a validated JWT, and every mutating method is refused. Lives in the
// composition root so auth and server stay decoupled.
type demoRegistrar struct {
	inner *auth.Handler
}

func (d *demoRegistrar) RegisterRoutes(mux *http.ServeMux) {
	d.inner.RegisterRoutes(mux)
}

func (d *demoRegistrar) Middleware() func(http.Handler) http.Handler {
	demoAuth := auth.DemoAuthMiddleware()
	return func(next http.Handler) http.Handler {
		return demoAuth(server.DemoMiddleware(next))
	}
}
