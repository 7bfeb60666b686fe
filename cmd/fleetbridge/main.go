package main

//	@title						FleetBridge API
//	@version					0.1.0
//	@description				Device connectivity and remote session management API.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/fleetbridge/fleetbridge/api/swagger"
	"github.com/fleetbridge/fleetbridge/internal/auth"
	"github.com/fleetbridge/fleetbridge/internal/config"
	"github.com/fleetbridge/fleetbridge/internal/console"
	"github.com/fleetbridge/fleetbridge/internal/event"
	"github.com/fleetbridge/fleetbridge/internal/flux"
	"github.com/fleetbridge/fleetbridge/internal/registry"
	"github.com/fleetbridge/fleetbridge/internal/relay"
	"github.com/fleetbridge/fleetbridge/internal/rollout"
	"github.com/fleetbridge/fleetbridge/internal/roster"
	"github.com/fleetbridge/fleetbridge/internal/server"
	"github.com/fleetbridge/fleetbridge/internal/store"
	"github.com/fleetbridge/fleetbridge/internal/uplink"
	"github.com/fleetbridge/fleetbridge/internal/version"
	"github.com/fleetbridge/fleetbridge/internal/vitals"
	"github.com/fleetbridge/fleetbridge/internal/webhook"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "token":
			runToken(os.Args[2:])
			return
		case "device":
			runDevice(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	// Initialize logger from configuration.
	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("FleetBridge server starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "fleetbridge.db"
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create data directory", zap.Error(err))
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}

	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Create shared services
	bus := event.NewBus(logger.Named("event"))
	logger.Info("event bus created", zap.String("component", "event"))

	// Create plugin registry
	reg := registry.New(logger.Named("registry"))
	logger.Info("plugin registry created", zap.String("component", "registry"))

	// Auth is optional: with no jwt_secret the API and the relay stream are
	// open, which is fine on a trusted network and wrong everywhere else.
	relayMod := relay.New()
	var tokens *auth.TokenService
	var authRegistrar server.RouteRegistrar
	if secret := viperCfg.GetString("auth.jwt_secret"); secret != "" {
		ttl := viperCfg.GetDuration("auth.access_token_ttl")
		if ttl == 0 {
			ttl = 15 * time.Minute
		}
		tokens = auth.NewTokenService([]byte(secret), ttl)
		authRegistrar = auth.NewHandler(tokens, logger.Named("auth"))
		relayMod.SetTokenValidator(&tokenAdapter{svc: tokens})
		logger.Info("auth enabled",
			zap.String("component", "auth"),
			zap.Duration("access_token_ttl", ttl),
		)
	} else {
		logger.Warn("auth.jwt_secret not configured; API and stream are unauthenticated",
			zap.String("component", "auth"),
		)
	}

	// Register all plugins (compile-time composition). Each can be switched
	// off with plugins.<name>.enabled; dependency validation below catches a
	// disabled module that an enabled one needs.
	candidates := []plugin.Plugin{
		roster.New(),
		vitals.New(),
		uplink.New(),
		console.New(),
		rollout.New(),
		relayMod,
		webhook.New(),
		flux.New(),
	}
	for _, m := range candidates {
		name := m.Info().Name
		if !viperCfg.GetBool("plugins." + name + ".enabled") {
			logger.Info("module disabled by config", zap.String("module", name))
			continue
		}
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register plugin", zap.Error(err))
		}
	}

	// Validate dependency graph and API versions
	if err := reg.Validate(); err != nil {
		logger.Fatal("plugin validation failed", zap.Error(err))
	}

	// Initialize all plugins with dependencies
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) plugin.Dependencies {
		pluginCfg := cfg.Sub("plugins." + name)
		return plugin.Dependencies{
			Config:  pluginCfg,
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	}); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	// Start plugins
	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	// Create and start HTTP server
	addr := fmt.Sprintf("%s:%d", viperCfg.GetString("server.host"), viperCfg.GetInt("server.port"))
	logger.Info("HTTP server configured",
		zap.String("component", "server"),
		zap.String("addr", addr),
	)
	devMode := viperCfg.GetBool("server.dev_mode")
	readOnly := viperCfg.GetBool("server.read_only")
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(addr, reg, logger, readyCheck, authRegistrar, devMode, readOnly)

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("FleetBridge server ready", zap.String("addr", addr))

	// Print human-readable banner for users watching docker logs.
	fmt.Fprintf(os.Stderr, "\n  FleetBridge %s is ready!\n  API at http://localhost:%d/api/v1\n\n", version.Short(), viperCfg.GetInt("server.port"))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("FleetBridge server stopped")
}

// tokenAdapter adapts auth.TokenService to the relay.TokenValidator
// interface. Lives in the composition root to avoid coupling relay -> auth.
type tokenAdapter struct {
	svc *auth.TokenService
}

func (a *tokenAdapter) Validate(token string) (string, error) {
	claims, err := a.svc.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
