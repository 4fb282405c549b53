package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"TradeSentinel/internal/logging"
	"TradeSentinel/internal/supervisor"
)

// Config holds all application configuration.
type Config struct {
	Timezone string `yaml:"timezone"`
	Sources  struct {
		File string `yaml:"file"`
	} `yaml:"sources"`
	Fetch struct {
		BaseURL  string        `yaml:"base_url"`
		APIKey   string        `yaml:"api_key"`
		MaxPosts int           `yaml:"max_posts"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"fetch"`
	Classifier struct {
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
		Preflight   *bool         `yaml:"preflight"`
	} `yaml:"classifier"`
	Pipeline struct {
		MaxWorkers int           `yaml:"max_workers"`
		Deadline   time.Duration `yaml:"deadline"`
	} `yaml:"pipeline"`
	Store struct {
		File string `yaml:"file"`
	} `yaml:"store"`
	Schedule struct {
		Cron             string        `yaml:"cron"`
		Heartbeat        string        `yaml:"heartbeat"`
		PollInterval     time.Duration `yaml:"poll_interval"`
		FailureThreshold int           `yaml:"failure_threshold"`
		RunOnStart       bool          `yaml:"run_on_start"`
		RestartExitCode  int           `yaml:"restart_exit_code"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Redis struct {
		URL    string        `yaml:"url"`
		TTL    time.Duration `yaml:"ttl"`
		Prefix string        `yaml:"prefix"`
	} `yaml:"redis"`
	Database struct {
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
		MaxConns    int    `yaml:"max_conns"`
		ViaBouncer  bool   `yaml:"via_bouncer"`
	} `yaml:"database"`
	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
// A missing file is not an error; every field has a default or an env override.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"GEMINI_API_KEY":     &c.Classifier.APIKey,
		"GEMINI_MODEL":       &c.Classifier.Model,
		"FETCH_BASE_URL":     &c.Fetch.BaseURL,
		"FETCH_API_KEY":      &c.Fetch.APIKey,
		"SOURCES_FILE":       &c.Sources.File,
		"STORE_FILE":         &c.Store.File,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"REDIS_URL":          &c.Redis.URL,
		"PG_DSN":             &c.Database.PostgresDSN,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"SCHEDULE_CRON":      &c.Schedule.Cron,
		"TIMEZONE":           &c.Timezone,
		"HTTPS_PROXY":        &c.Proxy,
		"LOG_LEVEL":          &c.Logging.Level,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_ON_START: %w", err)
		}
		c.Schedule.RunOnStart = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	if c.Sources.File == "" {
		c.Sources.File = "data/handles.txt"
	}
	if c.Fetch.MaxPosts == 0 {
		c.Fetch.MaxPosts = 10
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 60 * time.Second
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "gemini-1.5-flash"
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 60 * time.Second
	}
	if c.Classifier.MaxAttempts == 0 {
		c.Classifier.MaxAttempts = 4
	}
	if c.Classifier.BaseDelay == 0 {
		c.Classifier.BaseDelay = time.Second
	}
	if c.Classifier.MaxDelay == 0 {
		c.Classifier.MaxDelay = 30 * time.Second
	}
	if c.Classifier.Preflight == nil {
		enabled := true
		c.Classifier.Preflight = &enabled
	}
	if c.Pipeline.MaxWorkers == 0 {
		c.Pipeline.MaxWorkers = 5
	}
	if c.Pipeline.Deadline == 0 {
		c.Pipeline.Deadline = 300 * time.Second
	}
	if c.Store.File == "" {
		c.Store.File = "data/congress_trades.json"
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "30 9 * * 1-5"
	}
	if c.Schedule.Heartbeat == "" {
		c.Schedule.Heartbeat = "@every 1h"
	}
	if c.Schedule.PollInterval == 0 {
		c.Schedule.PollInterval = 60 * time.Second
	}
	if c.Schedule.FailureThreshold == 0 {
		c.Schedule.FailureThreshold = 5
	}
	if c.Schedule.RestartExitCode == 0 {
		c.Schedule.RestartExitCode = 75
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/trade_sentinel.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 4
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 7 * 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "logs/trade_sentinel.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
}

// Location resolves the configured reference timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// PreflightEnabled reports whether the classifier is checked before each run.
func (c *Config) PreflightEnabled() bool {
	return c.Classifier.Preflight == nil || *c.Classifier.Preflight
}

// NotifierEnabled reports whether Telegram credentials are configured.
func (c *Config) NotifierEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Classifier.APIKey) == "" {
		return fmt.Errorf("classifier.api_key (GEMINI_API_KEY) is required")
	}
	if strings.TrimSpace(c.Fetch.BaseURL) == "" {
		return fmt.Errorf("fetch.base_url (FETCH_BASE_URL) is required")
	}
	loc, err := c.Location()
	if err != nil {
		return err
	}
	if _, err := supervisor.ParseSchedule(c.Schedule.Cron, loc); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Pipeline.MaxWorkers <= 0 {
		return fmt.Errorf("pipeline.max_workers must be positive")
	}
	if c.Pipeline.Deadline <= 0 {
		return fmt.Errorf("pipeline.deadline must be positive")
	}
	if c.Schedule.FailureThreshold <= 0 {
		return fmt.Errorf("schedule.failure_threshold must be positive")
	}
	if c.Schedule.PollInterval <= 0 {
		return fmt.Errorf("schedule.poll_interval must be positive")
	}
	if c.Classifier.MaxAttempts <= 0 {
		return fmt.Errorf("classifier.max_attempts must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
