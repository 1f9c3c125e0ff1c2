package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
	"github.com/hairizuanbinnoorazman/keyword-runner/browser"
	"github.com/hairizuanbinnoorazman/keyword-runner/cmd/backend/handlers"
	"github.com/hairizuanbinnoorazman/keyword-runner/database"
	"github.com/hairizuanbinnoorazman/keyword-runner/logger"
	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/runner"
	"github.com/hairizuanbinnoorazman/keyword-runner/storage"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"github.com/spf13/cobra"
)

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServer,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log := logger.NewLogrusLogger(cfg.Log.Level)
	log.Info(ctx, "starting server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	// Connect to database
	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	if cfg.Database.Driver == database.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
	}

	log.Info(ctx, "database connected", map[string]interface{}{
		"driver":   cfg.Database.Driver,
		"host":     cfg.Database.Host,
		"database": cfg.Database.Database,
	})

	// Initialize artifact storage
	blob, err := storage.New(ctx, storage.Config{
		Type:          cfg.Storage.Type,
		BaseDir:       cfg.Storage.BaseDir,
		S3Bucket:      cfg.Storage.S3Bucket,
		S3Region:      cfg.Storage.S3Region,
		S3Endpoint:    cfg.Storage.S3Endpoint,
		PresignExpiry: cfg.Storage.S3PresignExpiry,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info(ctx, "artifact storage initialized", map[string]interface{}{
		"type": cfg.Storage.Type,
	})

	// Initialize stores
	projectStore := project.NewMySQLStore(db, log)
	moduleStore := testmodule.NewMySQLStore(db, log)
	testCaseStore := testcase.NewMySQLStore(db, log)
	testRunStore := testrun.NewMySQLStore(db, log)

	// Initialize runner and its worker pool
	localRunner := runner.New(runner.Deps{
		Cases:    testCaseStore,
		Projects: projectStore,
		Modules:  moduleStore,
		Runs:     testRunStore,
		Driver:   browser.NewPlaywrightDriver(browser.PlaywrightConfig{InstallBrowsers: cfg.Runner.InstallBrowsers}, log),
		Storage:  blob,
	}, runner.Options{
		ReportsDir: cfg.Runner.ReportsDir,
		LogLevel:   cfg.Log.Level,
	}, log)

	poolCtx, stopPool := context.WithCancel(ctx)
	pool := runner.NewPool(cfg.Runner.Workers, cfg.Runner.QueueSize, localRunner, log)
	pool.Start(poolCtx)
	defer func() {
		stopPool()
		pool.Wait()
	}()

	// Initialize agent registry
	registry := agent.NewRegistry(agent.Options{
		DefaultTimeout:      cfg.Agents.DefaultCommandTimeout,
		InactivityThreshold: cfg.Agents.InactivityThreshold,
	}, log)

	// Setup router
	router := handlers.NewRouter(handlers.Handlers{
		Projects:  handlers.NewProjectHandler(projectStore, log),
		Modules:   handlers.NewModuleHandler(moduleStore, projectStore, log),
		TestCases: handlers.NewTestCaseHandler(testCaseStore, projectStore, log),
		Runs:      handlers.NewTestRunHandler(testRunStore, testCaseStore, localRunner, pool, blob, log),
		Agents:    handlers.NewAgentHandler(registry, testCaseStore, projectStore, log),
	}, log)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info(ctx, "server stopped", nil)
	return nil
}
