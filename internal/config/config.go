// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package config defines the Stockroom configuration tree and its koanf-based
// loader. Precedence, lowest to highest: struct defaults, YAML config file,
// environment variables (STOCKROOM_ prefix, "__" as the nesting separator,
// e.g. STOCKROOM_BACKUP__DIR).
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the root configuration for the server process.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Backup    BackupConfig    `koanf:"backup"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Auth      AuthConfig      `koanf:"auth"`
	Alert     AlertConfig     `koanf:"alert"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds PostgreSQL connection settings. URL, when set (or
// supplied via the DATABASE_URL environment variable), takes precedence over
// the discrete fields.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"ssl_mode"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisConfig holds the fast lock store settings. An empty Addr disables the
// Redis lock path entirely; the advisory-lock fallback is used instead.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// BackupConfig holds backup engine settings.
type BackupConfig struct {
	// Dir is the directory where backup artifacts are written. Overridable
	// with STOCKROOM_BACKUP__DIR.
	Dir string `koanf:"dir"`

	// DumpTool and RestoreTool override the pg_dump/pg_restore binaries.
	DumpTool    string `koanf:"dump_tool"`
	RestoreTool string `koanf:"restore_tool"`

	// ToolTimeout bounds a single external dump/restore invocation.
	ToolTimeout time.Duration `koanf:"tool_timeout"`

	// MaxUploadBytes is the ceiling for uploaded backup files.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// SchedulerConfig holds background scheduler settings.
type SchedulerConfig struct {
	// PollInterval is how often the due-check runs. Lower-bounded at 15s to
	// avoid hot-looping.
	PollInterval time.Duration `koanf:"poll_interval"`

	// LockTTL is the Redis lock expiry. Must comfortably exceed the longest
	// expected job duration; it doubles as the crash-recovery timeout.
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// AuthConfig holds the admin-session and cron-trigger credentials.
type AuthConfig struct {
	// JWTSecret signs admin session tokens.
	JWTSecret string `koanf:"jwt_secret"`

	// CronToken is the shared secret expected on /api/v1/cron/* requests.
	CronToken string `koanf:"cron_token"`
}

// AlertConfig holds outbound email alerting settings.
type AlertConfig struct {
	Enabled  bool     `koanf:"enabled"`
	SMTPHost string   `koanf:"smtp_host"`
	SMTPPort int      `koanf:"smtp_port"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	From     string   `koanf:"from"`
	To       []string `koanf:"to"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8980,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "stockroom",
			Name:     "stockroom",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Addr: "",
		},
		Backup: BackupConfig{
			Dir:            "/data/backups",
			DumpTool:       "pg_dump",
			RestoreTool:    "pg_restore",
			ToolTimeout:    30 * time.Minute,
			MaxUploadBytes: 2 << 30, // 2GB
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Minute,
			LockTTL:      30 * time.Minute,
		},
		Auth: AuthConfig{},
		Alert: AlertConfig{
			SMTPPort: 587,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir is required")
	}
	if !filepath.IsAbs(c.Backup.Dir) {
		return fmt.Errorf("backup.dir must be an absolute path, got %q", c.Backup.Dir)
	}
	if c.Backup.ToolTimeout <= 0 {
		return fmt.Errorf("backup.tool_timeout must be positive, got %s", c.Backup.ToolTimeout)
	}
	if c.Backup.MaxUploadBytes <= 0 {
		return fmt.Errorf("backup.max_upload_bytes must be positive, got %d", c.Backup.MaxUploadBytes)
	}
	if c.Scheduler.LockTTL < time.Minute {
		return fmt.Errorf("scheduler.lock_ttl must be at least 1m, got %s", c.Scheduler.LockTTL)
	}
	return nil
}

// MinPollInterval is the lower bound for the scheduler poll interval.
const MinPollInterval = 15 * time.Second

// EffectivePollInterval returns the configured poll interval clamped to the
// minimum.
func (c *SchedulerConfig) EffectivePollInterval() time.Duration {
	if c.PollInterval < MinPollInterval {
		return MinPollInterval
	}
	return c.PollInterval
}
