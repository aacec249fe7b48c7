package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config is the full bridge configuration: flags select the file and log
// level, everything else comes from the JSON config file.
type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	Username string `json:"username"`
	Password string `json:"password"`

	APIBaseURL             string `json:"api_base_url"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	AlertsCount            int    `json:"alerts_count"`

	HTTPPort int    `json:"http_port"`
	DBPath   string `json:"db_path"`

	NtfyTopic string `json:"ntfy_topic"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`
}

func Load() (Config, error) {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to bridge config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.RefreshIntervalSeconds == 0 {
		cfg.RefreshIntervalSeconds = 180
	}
	if cfg.AlertsCount == 0 {
		cfg.AlertsCount = 20
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/icomfort-bridge.db"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "icomfort_bridge."
	}
}

// validate fails fast on anything the bridge cannot run without. The
// vendor service accepts a login attempt with empty credentials and then
// rejects every later call, so catch it here instead.
func (cfg *Config) validate() error {
	var missing []string
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return errors.New("missing required config fields: " + strings.Join(missing, ", "))
	}

	if cfg.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("refresh_interval_seconds must be positive, got %d", cfg.RefreshIntervalSeconds)
	}
	if cfg.AlertsCount < 0 {
		return fmt.Errorf("alerts_count must be positive, got %d", cfg.AlertsCount)
	}
	return nil
}
