package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the teamsbot server.
type Config struct {
	Bot         BotConfig         `json:"bot"`
	Server      ServerConfig      `json:"server"`
	Plugins     PluginsConfig     `json:"plugins"`
	Correlation CorrelationConfig `json:"correlation"`
	Dispatch    DispatchConfig    `json:"dispatch"`
	Client      ClientConfig      `json:"client"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	mu          sync.RWMutex
}

// BotConfig identifies the bot account.
type BotConfig struct {
	Name      string `json:"name"`                 // mention name, also the "@<name> " prefix stripped from messages
	Token     string `json:"token,omitempty"`      // access token (env TEAMSBOT_BOT_TOKEN)
	TokenFile string `json:"token_file,omitempty"` // fallback token file (default "~/.<name>")
	BaseURL   string `json:"base_url,omitempty"`   // Webex API base URL
}

// ServerConfig configures the webhook HTTP server.
type ServerConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Path          string `json:"path"`                     // webhook target path
	WebhookSecret string `json:"webhook_secret,omitempty"` // enables X-Spark-Signature verification
	RateLimitRPM  int    `json:"rate_limit_rpm,omitempty"` // per client IP; 0 disables
	Workers       int    `json:"workers,omitempty"`        // max concurrent dispatches
}

// PluginsConfig configures plugin unit discovery.
type PluginsConfig struct {
	Dir   string `json:"dir"`
	Watch bool   `json:"watch,omitempty"` // reload on manifest changes
}

// CorrelationConfig selects the correlation store backend.
type CorrelationConfig struct {
	Backend     string `json:"backend"` // "memory" (default), "sqlite", "postgres", "redis"
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"` // env only: TEAMSBOT_POSTGRES_DSN
	RedisURL    string `json:"redis_url,omitempty"`
	SweepCron   string `json:"sweep_cron,omitempty"`
}

// DispatchConfig tunes the event dispatcher.
type DispatchConfig struct {
	CallTimeout    string `json:"call_timeout,omitempty"`    // Go duration, default "10s"
	HandlerTimeout string `json:"handler_timeout,omitempty"` // Go duration, default "30s"
}

// ClientConfig tunes the outbound Webex REST client.
type ClientConfig struct {
	Timeout       string  `json:"timeout,omitempty"` // Go duration, default "30s"
	RatePerSecond float64 `json:"rate_per_second,omitempty"`
	MaxRetries    int     `json:"max_retries,omitempty"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP/HTTP endpoint (e.g. "localhost:4318")
	Insecure    bool              `json:"insecure,omitempty"`     // plain HTTP, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "teamsbot"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// CallTimeoutDuration parses Dispatch.CallTimeout, falling back to 10s.
func (d DispatchConfig) CallTimeoutDuration() time.Duration {
	return parseDuration(d.CallTimeout, 10*time.Second)
}

// HandlerTimeoutDuration parses Dispatch.HandlerTimeout, falling back to 30s.
func (d DispatchConfig) HandlerTimeoutDuration() time.Duration {
	return parseDuration(d.HandlerTimeout, 30*time.Second)
}

// TimeoutDuration parses Client.Timeout, falling back to 30s.
func (c ClientConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}
