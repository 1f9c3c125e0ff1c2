package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the agent process configuration. The agent runs test cases
// itself, so it reads the same database, storage and runner keys as the
// coordinator.
type Config struct {
	Agent    AgentConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Runner   RunnerConfig
	Log      LogConfig
}

// AgentConfig holds coordinator connection settings.
type AgentConfig struct {
	ServerURL         string
	Name              string
	Capabilities      []string
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	BufferSize        int
	RequestTimeout    time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

// StorageConfig holds artifact storage configuration.
type StorageConfig struct {
	Type            string
	BaseDir         string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PresignExpiry time.Duration
}

// RunnerConfig holds test execution configuration.
type RunnerConfig struct {
	ReportsDir      string
	InstallBrowsers bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from an optional .env file, the config file
// and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("agent.server_url", "http://localhost:8080")
	v.SetDefault("agent.name", "")
	v.SetDefault("agent.capabilities", []string{"playwright", "ui_testing"})
	v.SetDefault("agent.heartbeat_interval", "30s")
	v.SetDefault("agent.poll_interval", "5s")
	v.SetDefault("agent.buffer_size", 10)
	v.SetDefault("agent.request_timeout", "30s")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "keyword_runner")
	v.SetDefault("database.path", "keyword_runner.db")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)

	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.base_dir", "./artifacts")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_presign_expiry", "15m")

	v.SetDefault("runner.reports_dir", "reports")
	v.SetDefault("runner.install_browsers", false)

	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Agent.ServerURL = v.GetString("agent.server_url")
	config.Agent.Name = v.GetString("agent.name")
	config.Agent.Capabilities = v.GetStringSlice("agent.capabilities")
	config.Agent.HeartbeatInterval = v.GetDuration("agent.heartbeat_interval")
	config.Agent.PollInterval = v.GetDuration("agent.poll_interval")
	config.Agent.BufferSize = v.GetInt("agent.buffer_size")
	config.Agent.RequestTimeout = v.GetDuration("agent.request_timeout")

	config.Database.Driver = v.GetString("database.driver")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.Path = v.GetString("database.path")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.S3Bucket = v.GetString("storage.s3_bucket")
	config.Storage.S3Region = v.GetString("storage.s3_region")
	config.Storage.S3Endpoint = v.GetString("storage.s3_endpoint")
	config.Storage.S3PresignExpiry = v.GetDuration("storage.s3_presign_expiry")

	config.Runner.ReportsDir = v.GetString("runner.reports_dir")
	config.Runner.InstallBrowsers = v.GetBool("runner.install_browsers")

	config.Log.Level = v.GetString("log.level")

	return &config, nil
}
