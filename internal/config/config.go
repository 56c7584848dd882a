// Package config loads the BlueSender configuration from a YAML file with
// .env / environment-variable overrides layered on top.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Truelist TruelistConfig `yaml:"truelist"`
	Mailcow  MailcowConfig  `yaml:"mailcow"`
	Mail     MailConfig     `yaml:"mail"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig holds Redis settings for distributed locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// AuthConfig holds bearer-token verification settings. JWTSecret is the
// shared secret the hosted auth provider signs tokens with; without it
// every protected request fails with a server error.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TruelistConfig holds the email validation provider settings.
type TruelistConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c TruelistConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MailcowConfig holds the mail-admin API settings.
type MailcowConfig struct {
	APIURL         string `yaml:"api_url"`
	APIToken       string `yaml:"api_token"`
	DefaultDomain  string `yaml:"default_domain"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c MailcowConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Simulated reports whether the gateway should simulate provisioning
// instead of calling the admin API: no token configured, or the endpoint
// points at a local development target.
func (c MailcowConfig) Simulated() bool {
	return c.APIToken == "" || strings.Contains(c.APIURL, "localhost") || strings.Contains(c.APIURL, "127.0.0.1")
}

// MailConfig holds SMTP/IMAP transport settings shared by the send worker
// and the webmail API.
type MailConfig struct {
	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port"`
	IMAPHost        string `yaml:"imap_host"`
	IMAPPort        int    `yaml:"imap_port"`
	AllowSelfSigned bool   `yaml:"allow_self_signed"`
}

// WorkerConfig holds send-queue worker and reconciler settings.
type WorkerConfig struct {
	QueueBatchSize       int `yaml:"queue_batch_size"`
	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	ReconcileIntervalSec int `yaml:"reconcile_interval_seconds"`
	SMTPTimeoutSeconds   int `yaml:"smtp_timeout_seconds"`
}

// PollInterval returns the fallback queue poll interval.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ReconcileInterval returns the reconciler tick interval.
func (c WorkerConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSec) * time.Second
}

// SMTPTimeout returns the per-delivery SMTP timeout.
func (c WorkerConfig) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4001
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Truelist.BaseURL == "" {
		cfg.Truelist.BaseURL = "https://api.truelist.io/api/v1"
	}
	if cfg.Truelist.TimeoutSeconds == 0 {
		cfg.Truelist.TimeoutSeconds = 30
	}
	if cfg.Mailcow.TimeoutSeconds == 0 {
		cfg.Mailcow.TimeoutSeconds = 30
	}
	if cfg.Mailcow.DefaultDomain == "" {
		cfg.Mailcow.DefaultDomain = "bluelime.pro"
	}
	if cfg.Mail.SMTPPort == 0 {
		cfg.Mail.SMTPPort = 465
	}
	if cfg.Mail.IMAPPort == 0 {
		cfg.Mail.IMAPPort = 993
	}
	if cfg.Worker.QueueBatchSize == 0 {
		cfg.Worker.QueueBatchSize = 5
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 60
	}
	if cfg.Worker.ReconcileIntervalSec == 0 {
		cfg.Worker.ReconcileIntervalSec = 5
	}
	if cfg.Worker.SMTPTimeoutSeconds == 0 {
		cfg.Worker.SMTPTimeoutSeconds = 30
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars on the deployment host. A missing config
// file is not an error; defaults plus env vars are enough to run.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
		applyDefaults(cfg)
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TRUELIST_API_KEY"); v != "" {
		cfg.Truelist.APIKey = v
	}
	if v := os.Getenv("TRUELIST_BASE_URL"); v != "" {
		cfg.Truelist.BaseURL = v
	}
	if v := os.Getenv("MAILCOW_API_URL"); v != "" {
		cfg.Mailcow.APIURL = v
	}
	if v := os.Getenv("MAILCOW_API_TOKEN"); v != "" {
		cfg.Mailcow.APIToken = v
	}
	if v := os.Getenv("MAILCOW_DEFAULT_DOMAIN"); v != "" {
		cfg.Mailcow.DefaultDomain = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Mail.SMTPHost = v
	}
	if v := os.Getenv("IMAP_HOST"); v != "" {
		cfg.Mail.IMAPHost = v
	}
	if cfg.Mail.IMAPHost == "" {
		cfg.Mail.IMAPHost = cfg.Mail.SMTPHost
	}

	return cfg, nil
}
