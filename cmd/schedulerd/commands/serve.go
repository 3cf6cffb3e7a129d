package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/db"
	"github.com/feedline/scheduler/errors"
	"github.com/feedline/scheduler/logger"
	"github.com/feedline/scheduler/scheduler"
	"github.com/feedline/scheduler/server"
)

// ServeCmd starts the scheduler engine and admin API
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler engine and admin API",
	Long: `Start the scheduler: hydrate jobs from the database, begin cron timers,
and serve the admin HTTP API. Changes to scheduler.toml are picked up
without a restart (service base URLs only).`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveDBPath     string
	servePort       int
)

func init() {
	ServeCmd.Flags().StringVar(&serveConfigPath, "config", "", "Config file path (default: scheduler.toml found walking up)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Database path (overrides config)")
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Admin API port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveDBPath != "" {
		cfg.Database.Path = serveDBPath
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log := logger.Logger

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	hub := server.NewHub(log)
	engine := scheduler.NewEngine(database, scheduler.EngineConfig{
		Services:         cfg.Services,
		DispatchTimeout:  time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second,
		IdentityService:  cfg.Identity.Service,
		IdentityEndpoint: cfg.Identity.Endpoint,
	}, hub, log)

	if err := engine.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize scheduler engine")
	}
	defer engine.Shutdown()

	// Hot-reload the service directory when the config file changes; a
	// broken edit keeps the previous mapping
	if watchPath := configWatchPath(); watchPath != "" {
		watcher, err := config.NewWatcher(watchPath, log)
		if err != nil {
			log.Warnw("Config watcher unavailable", "path", watchPath, "error", err)
		} else {
			watcher.OnReload(func(next *config.Config) error {
				engine.ReplaceServices(next.Services)
				log.Infow("Service directory reloaded", "services", len(next.Services))
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	srv := server.New(engine, cfg, hub, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return errors.Wrap(err, "admin server failed")
	case sig := <-stop:
		log.Infow("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Admin server shutdown error", "error", err)
	}

	// Engine shutdown (deferred above) waits for in-flight dispatches
	return nil
}

func loadConfig() (*config.Config, error) {
	if serveConfigPath != "" {
		return config.LoadFromFile(serveConfigPath)
	}
	return config.Load()
}

func configWatchPath() string {
	if serveConfigPath != "" {
		return serveConfigPath
	}
	return config.FindConfigPath()
}
