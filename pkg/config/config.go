// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package config loads run configuration.
//
// Sources, later overriding earlier: defaults, an optional YAML file, a .env
// file, then environment variables with the OWM_ prefix (OWM_SOURCE_BBOX for
// source.bbox). PROMETHEUS_URL and PROMETHEUS_BEARER_TOKEN are honoured for
// existing deployments.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"owmgraph/pkg/model"
)

const EnvPrefix = "OWM"

// Config is the root configuration
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Output     OutputConfig     `mapstructure:"output"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// SourceConfig describes the upstream API and how hard to hit it
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	BBox           string        `mapstructure:"bbox" validate:"required"`
	Concurrency    int           `mapstructure:"concurrency" validate:"min=1,max=1000"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gte=0"`
	UserAgent      string        `mapstructure:"user_agent"`
	IndexTTL       time.Duration `mapstructure:"index_ttl" validate:"gt=0"`
	RecordTTL      time.Duration `mapstructure:"record_ttl" validate:"gt=0"`
}

// CacheConfig selects the response cache backend
type CacheConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=leveldb memory redis none"`
	Path       string `mapstructure:"path" validate:"required_if=Backend leveldb"`
	MemorySize int    `mapstructure:"memory_size" validate:"gte=0"`
	RedisAddr  string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB    int    `mapstructure:"redis_db" validate:"gte=0"`
}

// FilterConfig controls which nodes make it into the snapshot
type FilterConfig struct {
	IgnoreOffline bool          `mapstructure:"ignore_offline"`
	OnlineWindow  time.Duration `mapstructure:"online_window" validate:"gt=0"`
	StaleAfter    time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	DefaultDomain string        `mapstructure:"default_domain"`
}

// FallbackConfig points at the local node file directory
type FallbackConfig struct {
	Dir string `mapstructure:"dir"`
}

// PrometheusConfig is the client count query endpoint
type PrometheusConfig struct {
	URL         string        `mapstructure:"url" validate:"omitempty,url"`
	BearerToken string        `mapstructure:"bearer_token"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// OutputConfig is where the snapshot is written
type OutputConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoggerConfig configures zap
type LoggerConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format      string `mapstructure:"format" validate:"oneof=console json"`
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
	ServiceName string `mapstructure:"service_name"`
}

// NewViper returns a viper instance with defaults and environment bindings applied.
// Callers may bind command flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy names used by existing deployments
	_ = v.BindEnv("prometheus.url", EnvPrefix+"_PROMETHEUS_URL", "PROMETHEUS_URL")
	_ = v.BindEnv("prometheus.bearer_token", EnvPrefix+"_PROMETHEUS_BEARER_TOKEN", "PROMETHEUS_BEARER_TOKEN")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://mapapi.weimarnetz.de")
	v.SetDefault("source.bbox", model.WorldBBox.String())
	v.SetDefault("source.concurrency", 50)
	v.SetDefault("source.request_timeout", 20*time.Second)
	v.SetDefault("source.max_attempts", 3)
	v.SetDefault("source.retry_delay", 250*time.Millisecond)
	v.SetDefault("source.rate_limit", 0.0)
	v.SetDefault("source.user_agent", "owmgraph")
	v.SetDefault("source.index_ttl", 10*time.Minute)
	v.SetDefault("source.record_ttl", 30*time.Minute)

	v.SetDefault("cache.backend", "leveldb")
	v.SetDefault("cache.path", "/dev/shm/owm2meshviewer_cache")
	v.SetDefault("cache.memory_size", 4096)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("filter.ignore_offline", true)
	v.SetDefault("filter.online_window", 4*time.Hour)
	v.SetDefault("filter.stale_after", 7*24*time.Hour)
	v.SetDefault("filter.default_domain", "Weimar")

	v.SetDefault("fallback.dir", "/var/opt/ffmapdata")

	v.SetDefault("prometheus.url", "https://victoria-metrics/api/v1/query?query=weimarnetz_dhcp_clients")
	v.SetDefault("prometheus.bearer_token", "")
	v.SetDefault("prometheus.timeout", 5*time.Second)

	v.SetDefault("output.path", "nodes_meshviewer.json")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.service_name", "owmgraph")
}

// Load reads the optional config file and .env, then decodes and validates.
// An empty cfgFile skips the file; a named file that does not exist is an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and the bounding box
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := model.ParseBBox(c.Source.BBox); err != nil {
		return err
	}
	return nil
}

// BBox returns the parsed bounding box. Call after Validate.
func (c *Config) BBox() model.BBox {
	b, err := model.ParseBBox(c.Source.BBox)
	if err != nil {
		return model.WorldBBox
	}
	return b
}
