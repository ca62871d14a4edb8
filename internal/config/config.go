// Package config loads application settings.
//
// Settings are layered, later layers winning:
//
//  1. Defaults from defaultConfig()
//  2. An optional YAML file (--config flag, CONFIG_PATH, or ./config.yaml)
//  3. Environment variables (PORT, DB_PATH, JWT_SECRET, ...)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server     ServerConfig    `koanf:"server"`
	Database   DatabaseConfig  `koanf:"database"`
	Auth       AuthConfig      `koanf:"auth"`
	Media      MediaConfig     `koanf:"media"`
	Logging    LoggingConfig   `koanf:"logging"`
	ShortLinks ShortLinkConfig `koanf:"shortlinks"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// BaseURL is the public origin used to build short links.
	BaseURL            string        `koanf:"base_url"`
	CORSOrigins        []string      `koanf:"cors_origins"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	TokenTTL           time.Duration `koanf:"token_ttl"`
	GitHubClientID     string        `koanf:"github_client_id"`
	GitHubClientSecret string        `koanf:"github_client_secret"`
	GitHubCallbackURL  string        `koanf:"github_callback_url"`
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type MediaConfig struct {
	Backend string   `koanf:"backend"` // "local" or "s3"
	Root    string   `koanf:"root"`    // local: directory on disk
	URL     string   `koanf:"url"`     // local: public URL prefix
	S3      S3Config `koanf:"s3"`
}

type S3Config struct {
	Endpoint     string `koanf:"endpoint"`
	Region       string `koanf:"region"`
	Bucket       string `koanf:"bucket"`
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	PublicURL    string `koanf:"public_url"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

type ShortLinkConfig struct {
	CacheSize int `koanf:"cache_size"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			BaseURL:            "http://localhost:8080",
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimitPerMinute: 300,
			ShutdownTimeout:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/foodgram.db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Media: MediaConfig{
			Backend: "local",
			Root:    "data/media",
			URL:     "http://localhost:8080/media",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		ShortLinks: ShortLinkConfig{
			CacheSize: 1024,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// CONFIG_PATH and DefaultConfigPaths are searched.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters (JWT_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	switch c.Media.Backend {
	case "local":
		if c.Media.Root == "" {
			errs = append(errs, errors.New("media.root is required for the local backend"))
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			errs = append(errs, errors.New("media.s3.bucket is required for the s3 backend"))
		}
		if c.Media.S3.PublicURL == "" {
			errs = append(errs, errors.New("media.s3.public_url is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.backend %q must be local or s3", c.Media.Backend))
	}

	if c.ShortLinks.CacheSize <= 0 {
		errs = append(errs, errors.New("shortlinks.cache_size must be positive"))
	}

	return errors.Join(errs...)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they come from
// the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("setting %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
var envMappings = map[string]string{
	"port":                  "server.port",
	"base_url":              "server.base_url",
	"cors_origins":          "server.cors_origins",
	"rate_limit_per_minute": "server.rate_limit_per_minute",
	"shutdown_timeout":      "server.shutdown_timeout",

	"db_path": "database.path",

	"jwt_secret":           "auth.jwt_secret",
	"token_ttl":            "auth.token_ttl",
	"github_client_id":     "auth.github_client_id",
	"github_client_secret": "auth.github_client_secret",
	"github_callback_url":  "auth.github_callback_url",

	"media_backend":     "media.backend",
	"media_root":        "media.root",
	"media_url":         "media.url",
	"s3_endpoint":       "media.s3.endpoint",
	"s3_region":         "media.s3.region",
	"s3_bucket":         "media.s3.bucket",
	"s3_access_key":     "media.s3.access_key",
	"s3_secret_key":     "media.s3.secret_key",
	"s3_public_url":     "media.s3.public_url",
	"s3_use_path_style": "media.s3.use_path_style",

	"log_level":  "logging.level",
	"log_format": "logging.format",

	"shortlink_cache_size": "shortlinks.cache_size",
}

// envTransformFunc maps an environment variable to its config path.
// Unknown variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
