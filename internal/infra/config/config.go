package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeServer = "server"
	ModeClient = "client"

	DedupePostgres = "postgres"
	DedupeRedis    = "redis"
	DedupeMemory   = "memory"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL             string
	RedisURL                string
	DedupeStore             string
	TelegramToken           string
	TelegramChatID          int64
	TelegramMessageThreadID int
	AdminTelegramID         int64
	HTTPAddr                string
	LogLevel                string
	Environment             string
	ReportTimezone          *time.Location
	ReportPollSpec          string
	ClientPollSpec          string
	SchedulerEnabled        bool
	SchedulerMode           string
	RemoteTimeout           time.Duration
	RelayBaseURL            string
	LocalStatePath          string
}

// TelegramConfigured reports whether direct bot delivery is possible.
func (c *AppConfig) TelegramConfigured() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load does not override variables already set in the environment.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.DedupeStore = strings.ToLower(os.Getenv("DEDUPE_STORE"))
	if cfg.DedupeStore == "" {
		cfg.DedupeStore = DedupePostgres
		if cfg.RedisURL != "" {
			cfg.DedupeStore = DedupeRedis
		}
	}
	switch cfg.DedupeStore {
	case DedupePostgres, DedupeMemory:
	case DedupeRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("DEDUPE_STORE=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("invalid DEDUPE_STORE %q", cfg.DedupeStore)
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramToken == "" {
		cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}
	if v := os.Getenv("TELEGRAM_MESSAGE_THREAD_ID"); v != "" {
		cfg.TelegramMessageThreadID, err = strconv.Atoi(v)
		if err != nil || cfg.TelegramMessageThreadID < 0 {
			return nil, fmt.Errorf("invalid TELEGRAM_MESSAGE_THREAD_ID %q", v)
		}
	}
	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:8080"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	tz := os.Getenv("REPORT_TIMEZONE")
	if tz == "" {
		tz = "Europe/Moscow"
	}
	cfg.ReportTimezone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE: %w", err)
	}

	cfg.ReportPollSpec = os.Getenv("REPORT_POLL_SPEC")
	if cfg.ReportPollSpec == "" {
		cfg.ReportPollSpec = "@every 60s"
	}
	cfg.ClientPollSpec = os.Getenv("CLIENT_POLL_SPEC")
	if cfg.ClientPollSpec == "" {
		cfg.ClientPollSpec = "@every 30s"
	}

	cfg.SchedulerEnabled = true
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		cfg.SchedulerEnabled, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
		}
	}

	cfg.SchedulerMode = strings.ToLower(os.Getenv("SCHEDULER_MODE"))
	if cfg.SchedulerMode == "" {
		cfg.SchedulerMode = ModeServer
	}
	if cfg.SchedulerMode != ModeServer && cfg.SchedulerMode != ModeClient {
		return nil, fmt.Errorf("invalid SCHEDULER_MODE %q", cfg.SchedulerMode)
	}

	cfg.RemoteTimeout = 15 * time.Second
	if v := os.Getenv("REMOTE_TIMEOUT"); v != "" {
		cfg.RemoteTimeout, err = time.ParseDuration(v)
		if err != nil || cfg.RemoteTimeout <= 0 {
			return nil, fmt.Errorf("invalid REMOTE_TIMEOUT %q", v)
		}
	}

	cfg.RelayBaseURL = strings.TrimRight(os.Getenv("RELAY_BASE_URL"), "/")

	cfg.LocalStatePath = os.Getenv("LOCAL_STATE_PATH")
	if cfg.LocalStatePath == "" {
		cfg.LocalStatePath = "attendpro-state.json"
	}

	return cfg, nil
}
