package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full application configuration.
//
// Files are YAML (config/base.yaml plus an optional per-environment
// override), but the struct uses JSON tags because the loader coerces YAML
// to JSON and decodes strictly (unknown keys are rejected).
type Config struct {
	Application ApplicationConfig `json:"application"`
	Polymarket  PolymarketConfig  `json:"polymarket"`
	Database    DatabaseConfig    `json:"database"`
	Discord     DiscordConfig     `json:"discord"`
	Telegram    *TelegramConfig   `json:"telegram,omitempty"`
	API         *APIConfig        `json:"api,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
}

// Delivery modes: deliver every fetched notification (the historical
// behavior, which can repeat a chat message when an already-stored
// notification is re-fetched) or only the ones the store newly inserted.
const (
	DeliverAll       = "all"
	DeliverPersisted = "persisted"
)

// Key strategies for notifications the source did not assign an id to.
const (
	KeyDerived = "derived" // deterministic hash of stable payload fields
	KeyRandom  = "random"  // fresh UUID per fetch; duplicates never collide
)

type ApplicationConfig struct {
	FetchIntervalSeconds int    `json:"fetch_interval_seconds,omitempty"` // default 60
	Deliver              *bool  `json:"deliver,omitempty"`                // default true
	DeliverMode          string `json:"deliver_mode,omitempty"`           // all | persisted
	KeyStrategy          string `json:"key_strategy,omitempty"`           // derived | random

	Retention RetentionConfig `json:"retention,omitempty"`
}

// RetentionConfig controls the age-based purge job.
type RetentionConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Days     int    `json:"days,omitempty"`     // default 30
	Schedule string `json:"schedule,omitempty"` // cron spec, default "0 4 * * *"
}

type PolymarketConfig struct {
	Host          string `json:"host,omitempty"` // default https://clob.polymarket.com
	PrivateKey    string `json:"private_key"`
	SignatureType int    `json:"signature_type,omitempty"`
	ProxyAddress  string `json:"proxy_address,omitempty"`

	APIKey        string `json:"api_key,omitempty"`
	APISecret     string `json:"api_secret,omitempty"`
	APIPassphrase string `json:"api_passphrase,omitempty"`
}

type DatabaseConfig struct {
	Driver     string `json:"driver,omitempty"`      // mongo (default) | sqlite
	MongoURL   string `json:"mongo_url,omitempty"`   // default mongodb://localhost:27017
	Name       string `json:"db_name,omitempty"`     // default polymarket_notifications
	SQLitePath string `json:"sqlite_path,omitempty"` // sqlite driver only
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Username   string `json:"username,omitempty"` // default "Polymarket Notification Bot"
	TimeoutMS  int    `json:"timeout_ms,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // 0 disables the limiter
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:8080
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // default true
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // default true
	Dir     string `json:"dir,omitempty"`     // default ./log
}

func (c *Config) applyDefaults() {
	if c.Application.FetchIntervalSeconds == 0 {
		c.Application.FetchIntervalSeconds = 60
	}
	if c.Application.Deliver == nil {
		t := true
		c.Application.Deliver = &t
	}
	if c.Application.DeliverMode == "" {
		c.Application.DeliverMode = DeliverAll
	}
	if c.Application.KeyStrategy == "" {
		c.Application.KeyStrategy = KeyDerived
	}
	if c.Application.Retention.Days == 0 {
		c.Application.Retention.Days = 30
	}
	if c.Application.Retention.Schedule == "" {
		c.Application.Retention.Schedule = "0 4 * * *"
	}

	if c.Polymarket.Host == "" {
		c.Polymarket.Host = "https://clob.polymarket.com"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "mongo"
	}
	if c.Database.MongoURL == "" {
		c.Database.MongoURL = "mongodb://localhost:27017"
	}
	if c.Database.Name == "" {
		c.Database.Name = "polymarket_notifications"
	}

	if c.Discord.Username == "" {
		c.Discord.Username = "Polymarket Notification Bot"
	}
	if c.Discord.TimeoutMS == 0 {
		c.Discord.TimeoutMS = 3000
	}

	if c.API != nil && c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8080"
	}

	if c.Logging.Console == nil {
		t := true
		c.Logging.Console = &t
	}
	if c.Logging.File.Enabled == nil {
		t := true
		c.Logging.File.Enabled = &t
	}
	if c.Logging.File.Dir == "" {
		c.Logging.File.Dir = "./log"
	}
}

// Validate checks ranges and required credentials. A failure here is fatal
// at startup: the process must not run half-configured.
func (c *Config) Validate() error {
	if c.Application.FetchIntervalSeconds < 1 {
		return fmt.Errorf("application.fetch_interval_seconds must be at least 1, got %d", c.Application.FetchIntervalSeconds)
	}
	switch c.Application.DeliverMode {
	case DeliverAll, DeliverPersisted:
	default:
		return fmt.Errorf("application.deliver_mode must be %q or %q, got %q", DeliverAll, DeliverPersisted, c.Application.DeliverMode)
	}
	switch c.Application.KeyStrategy {
	case KeyDerived, KeyRandom:
	default:
		return fmt.Errorf("application.key_strategy must be %q or %q, got %q", KeyDerived, KeyRandom, c.Application.KeyStrategy)
	}
	if c.Application.Retention.Enabled && c.Application.Retention.Days < 1 {
		return fmt.Errorf("application.retention.days must be at least 1, got %d", c.Application.Retention.Days)
	}

	if strings.TrimSpace(c.Polymarket.PrivateKey) == "" {
		return fmt.Errorf("polymarket.private_key is required")
	}

	switch c.Database.Driver {
	case "mongo", "sqlite":
	default:
		return fmt.Errorf("database.driver must be \"mongo\" or \"sqlite\", got %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && strings.TrimSpace(c.Database.SQLitePath) == "" {
		return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
	}

	if strings.TrimSpace(c.Discord.WebhookURL) == "" {
		return fmt.Errorf("discord.webhook_url is required (set DISCORD_WEBHOOK_URL)")
	}

	if c.Telegram != nil && c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram.enabled is true")
		}
	}
	return nil
}

// FetchInterval returns the polling interval as a duration.
func (c *Config) FetchInterval() time.Duration {
	return time.Duration(c.Application.FetchIntervalSeconds) * time.Second
}

// DeliveryEnabled reports whether fetched notifications should be relayed.
func (c *Config) DeliveryEnabled() bool {
	return c.Application.Deliver == nil || *c.Application.Deliver
}
