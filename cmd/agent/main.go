package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hairizuanbinnoorazman/keyword-runner/agentclient"
	"github.com/hairizuanbinnoorazman/keyword-runner/browser"
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

var (
	// Version is the application version (set during build).
	Version = "dev"

	// Commit is the git commit hash (set during build).
	Commit = "unknown"

	// BuildDate is the build date (set during build).
	BuildDate = "unknown"
)

var (
	configFile string
	agentName  string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Keyword runner remote agent",
	Long:  `Registers with a coordinator, polls it for commands and runs the requested test cases on this host.`,
	RunE:  runAgent,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.Flags().StringVar(&agentName, "name", "", "agent name (default: agent.name or the hostname)")
	rootCmd.Flags().StringVar(&serverURL, "server", "", "coordinator URL (default: agent.server_url)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agent %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Agent.ServerURL = serverURL
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	name := cfg.Agent.Name
	if agentName != "" {
		name = agentName
	}
	if name == "" {
		name = hostname
	}

	log := logger.NewLogrusLogger(cfg.Log.Level).WithField("agent_name", name)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.Connect(database.Config{
		Driver:       cfg.Database.Driver,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

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

	executor := runner.New(runner.Deps{
		Cases:    testcase.NewMySQLStore(db, log),
		Projects: project.NewMySQLStore(db, log),
		Modules:  testmodule.NewMySQLStore(db, log),
		Runs:     testrun.NewMySQLStore(db, log),
		Driver:   browser.NewPlaywrightDriver(browser.PlaywrightConfig{InstallBrowsers: cfg.Runner.InstallBrowsers}, log),
		Storage:  blob,
	}, runner.Options{
		ReportsDir: cfg.Runner.ReportsDir,
		LogLevel:   cfg.Log.Level,
		Executor:   "agent:" + name,
	}, log)

	client := agentclient.New(
		agentclient.NewHTTPTransport(cfg.Agent.ServerURL, cfg.Agent.RequestTimeout),
		executor,
		agentclient.Config{
			Name:              name,
			Hostname:          hostname,
			IPAddress:         outboundIP(),
			Capabilities:      cfg.Agent.Capabilities,
			HeartbeatInterval: cfg.Agent.HeartbeatInterval,
			PollInterval:      cfg.Agent.PollInterval,
			BufferSize:        cfg.Agent.BufferSize,
		},
		log,
	)

	log.Info(ctx, "starting agent", map[string]interface{}{
		"version":    Version,
		"server_url": cfg.Agent.ServerURL,
		"hostname":   hostname,
	})

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("agent stopped: %w", err)
	}
	log.Info(context.Background(), "agent stopped", nil)
	return nil
}

// outboundIP returns the local address used to reach the network, or an
// empty string when there is no route.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
