/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the three-way match server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config.yaml (or environment)
  2. Initialize structured logger
  3. Initialize SQLite store
  4. Load the rule configuration: database, then rules file, then defaults
  5. Create matching service, API handler and auto-match scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (default: config.yaml)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/threeway.db"

  # Run with in-memory database
  ./server -db=":memory:"

ENVIRONMENT:
  See config/config.go: THREEWAY_PORT, THREEWAY_DB_PATH, THREEWAY_RULES_FILE,
  THREEWAY_AUTO_MATCH_INTERVAL, LOG_LEVEL, LOG_FORMAT

SEE ALSO:
  - api/server.go: Router configuration
  - matching/service.go: Matching service
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/threeway-match/api"
	"github.com/warp/threeway-match/config"
	"github.com/warp/threeway-match/factory"
	"github.com/warp/threeway-match/logging"
	"github.com/warp/threeway-match/matching"
	"github.com/warp/threeway-match/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg := config.LoadOrEnv(*configPath)
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.DatabasePath = *dbPath
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := sqlite.New(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	matchingCfg, err := initialConfiguration(ctx, cfg.Matching, store, logger)
	if err != nil {
		return err
	}
	rules, err := matching.NewRuleStore(matchingCfg)
	if err != nil {
		return fmt.Errorf("invalid matching configuration: %w", err)
	}

	// Matching service
	svc := matching.NewService(store, store, rules, matching.NewLogSink(logging.WithSystem(logger, "events")))
	svc.Documents = store
	svc.Configs = store
	svc.Logger = logging.WithSystem(logger, "matching")

	// Scheduler
	interval, err := cfg.Matching.Interval()
	if err != nil {
		return err
	}
	scheduler := api.NewAutoMatchScheduler(svc, logging.WithSystem(logger, "scheduler"))
	scheduler.CheckInterval = interval
	scheduler.Enabled = interval > 0
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	handler := api.NewHandler(svc, store, logging.WithSystem(logger, "api"))
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Storage.DatabasePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// initialConfiguration prefers the persisted configuration, then the rules
// file, then the built-in defaults. Whatever is chosen is persisted so the
// next start sees the same rules.
func initialConfiguration(ctx context.Context, mc config.MatchingConfig, store *sqlite.Store, logger *slog.Logger) (matching.MatchingConfiguration, error) {
	saved, err := store.LoadConfiguration(ctx)
	if err != nil {
		return matching.MatchingConfiguration{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if saved != nil {
		logger.Info("using stored matching configuration", "rules", saved.Rules.Len())
		return *saved, nil
	}

	cfg := factory.DefaultConfiguration()
	source := "defaults"
	if mc.RulesFile != "" {
		cfg, err = factory.LoadConfigurationFile(mc.RulesFile)
		if err != nil {
			return matching.MatchingConfiguration{}, fmt.Errorf("failed to load rules file: %w", err)
		}
		source = mc.RulesFile
	}
	if err := store.SaveConfiguration(ctx, cfg); err != nil {
		return matching.MatchingConfiguration{}, fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Info("seeded matching configuration", "source", source, "rules", cfg.Rules.Len())
	return cfg, nil
}
