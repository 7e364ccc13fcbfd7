// Package config loads gqlws configuration and resolves the per-request
// view of it handed to the transports.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File mirrors the on-disk configuration. Zero values are filled by Default.
type File struct {
	Server        ServerConfig        `toml:"server" yaml:"server"`
	GraphiQL      GraphiQLConfig      `toml:"graphiql" yaml:"graphiql"`
	Subscriptions SubscriptionsConfig `toml:"subscriptions" yaml:"subscriptions"`
	Log           LogConfig           `toml:"log" yaml:"log"`
	OTel          OTelConfig          `toml:"otel" yaml:"otel"`
	Metrics       MetricsConfig       `toml:"metrics" yaml:"metrics"`
	PubSub        PubSubConfig        `toml:"pubsub" yaml:"pubsub"`

	// Context is the base execution context copied into every request.
	Context map[string]any `toml:"context" yaml:"context"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr" yaml:"addr"`
	Path            string        `toml:"path" yaml:"path"`
	Timeout         time.Duration `toml:"timeout" yaml:"timeout"`
	Pretty          bool          `toml:"pretty" yaml:"pretty"`
	MaxBodyBytes    int64         `toml:"max_body_bytes" yaml:"max_body_bytes"`
	CORSOrigins     []string      `toml:"cors_origins" yaml:"cors_origins"`
	MetadataHeaders []string      `toml:"metadata_headers" yaml:"metadata_headers"`
}

type GraphiQLConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Path mounts GraphiQL on its own route. Empty serves it from the
	// GraphQL path to browsers.
	Path             string `toml:"path" yaml:"path"`
	DefaultQuery     string `toml:"default_query" yaml:"default_query"`
	DefaultVariables string `toml:"default_variables" yaml:"default_variables"`
	DefaultHeaders   string `toml:"default_headers" yaml:"default_headers"`
}

type SubscriptionsConfig struct {
	Enabled        bool          `toml:"enabled" yaml:"enabled"`
	Path           string        `toml:"path" yaml:"path"`
	KeepAlive      time.Duration `toml:"keep_alive" yaml:"keep_alive"`
	WriteTimeout   time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	ReadLimit      int64         `toml:"read_limit" yaml:"read_limit"`
	SendBuffer     int           `toml:"send_buffer" yaml:"send_buffer"`
	AllowedOrigins []string      `toml:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type OTelConfig struct {
	Endpoint string `toml:"endpoint" yaml:"endpoint"`
	Service  string `toml:"service" yaml:"service"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
	Path string `toml:"path" yaml:"path"`
}

type PubSubConfig struct {
	Backend  string `toml:"backend" yaml:"backend"`
	RedisURL string `toml:"redis_url" yaml:"redis_url"`
}

// Default returns the built-in configuration.
func Default() File {
	return File{
		Server: ServerConfig{
			Addr:    ":8080",
			Path:    "/graphql",
			Timeout: 10 * time.Second,
		},
		GraphiQL: GraphiQLConfig{Enabled: true},
		Subscriptions: SubscriptionsConfig{
			Enabled:      true,
			Path:         "/subscriptions",
			WriteTimeout: 10 * time.Second,
			ReadLimit:    1 << 20,
			SendBuffer:   64,
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		OTel:    OTelConfig{Service: "gqlws"},
		Metrics: MetricsConfig{Path: "/metrics"},
		PubSub:  PubSubConfig{Backend: "memory"},
		Context: map[string]any{},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .toml, .yaml or .yml. An empty path returns the defaults.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return File{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return File{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return File{}, fmt.Errorf("unsupported config format %q", ext)
	}
	if cfg.Context == nil {
		cfg.Context = map[string]any{}
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GQLWS_"

// ApplyEnv overrides cfg from GQLWS_* variables looked up with getenv.
func (cfg *File) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	str("SERVER_ADDR", &cfg.Server.Addr)
	str("SERVER_PATH", &cfg.Server.Path)
	str("SUBSCRIPTIONS_PATH", &cfg.Subscriptions.Path)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("OTEL_ENDPOINT", &cfg.OTel.Endpoint)
	str("OTEL_SERVICE", &cfg.OTel.Service)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("PUBSUB_BACKEND", &cfg.PubSub.Backend)
	str("PUBSUB_REDIS_URL", &cfg.PubSub.RedisURL)

	if v := getenv(EnvPrefix + "SUBSCRIPTIONS_KEEP_ALIVE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSUBSCRIPTIONS_KEEP_ALIVE: %w", EnvPrefix, err)
		}
		cfg.Subscriptions.KeepAlive = d
	}
	if v := getenv(EnvPrefix + "GRAPHIQL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sGRAPHIQL_ENABLED: %w", EnvPrefix, err)
		}
		cfg.GraphiQL.Enabled = b
	}
	return nil
}

// Validate reports the first invalid setting.
func (cfg File) Validate() error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		return fmt.Errorf("server.path %q must start with /", cfg.Server.Path)
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return errors.New("server.max_body_bytes must not be negative")
	}
	if cfg.Subscriptions.Enabled {
		if !strings.HasPrefix(cfg.Subscriptions.Path, "/") {
			return fmt.Errorf("subscriptions.path %q must start with /", cfg.Subscriptions.Path)
		}
		if cfg.Subscriptions.Path == cfg.Server.Path {
			return errors.New("subscriptions.path must differ from server.path")
		}
		if cfg.Subscriptions.KeepAlive < 0 {
			return errors.New("subscriptions.keep_alive must not be negative")
		}
		if cfg.Subscriptions.SendBuffer < 0 {
			return errors.New("subscriptions.send_buffer must not be negative")
		}
	}
	if p := cfg.GraphiQL.Path; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("graphiql.path %q must start with /", p)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be console or json", cfg.Log.Format)
	}
	switch cfg.PubSub.Backend {
	case "memory":
	case "redis":
		if cfg.PubSub.RedisURL == "" {
			return errors.New("pubsub.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("pubsub.backend %q must be memory or redis", cfg.PubSub.Backend)
	}
	return nil
}
