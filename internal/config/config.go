// Package config loads process configuration from defaults, an optional
// YAML file, RECALL_ environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/domain"
)

// EnvPrefix marks the environment variables read by Load. The first
// underscore after the prefix separates section from key, so
// RECALL_SESSION_PROMPT_FALLBACK sets session.prompt_fallback.
const EnvPrefix = "RECALL_"

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Storage  StorageConfig   `koanf:"storage"`
	HTTP     HTTPConfig      `koanf:"http"`
	Log      LogConfig       `koanf:"log"`
	Session  SessionConfig   `koanf:"session"`
	Digest   DigestConfig    `koanf:"digest"`
	Sources  SourcesConfig   `koanf:"sources"`
	Defaults domain.Settings `koanf:"defaults"`
}

type StorageConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SessionConfig times the practice driver.
type SessionConfig struct {
	Tick           time.Duration `koanf:"tick" validate:"gt=0"`
	PromptFallback time.Duration `koanf:"prompt_fallback" validate:"gt=0"`
}

type DigestConfig struct {
	Enabled bool `koanf:"enabled"`
}

type SourcesConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage:  StorageConfig{Path: "recall.db"},
		HTTP:     HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Log:      LogConfig{Level: "info", Format: "text"},
		Session:  SessionConfig{Tick: 100 * time.Millisecond, PromptFallback: 8 * time.Second},
		Digest:   DigestConfig{Enabled: true},
		Sources:  SourcesConfig{ReposDir: "repos"},
		Defaults: domain.DefaultSettings(),
	}
}

// NewFlagSet returns a flag set carrying the configuration flags. Callers
// may add their own flags before parsing it.
func NewFlagSet(name string) *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("storage.path", def.Storage.Path, "Path to the SQLite database file")
	fs.String("http.addr", def.HTTP.Addr, "Address the HTTP API listens on")
	fs.Duration("http.shutdown_timeout", def.HTTP.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	fs.String("log.level", def.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log.format", def.Log.Format, "Log format: text or json")
	fs.Duration("session.tick", def.Session.Tick, "Practice driver poll interval")
	fs.Duration("session.prompt_fallback", def.Session.PromptFallback, "How long to wait for the spoken prompt before moving on")
	fs.Bool("digest.enabled", def.Digest.Enabled, "Log a daily digest at the reset time")
	fs.String("sources.repos_dir", def.Sources.ReposDir, "Directory holding clones of git deck sources")
	return fs
}

// Load merges every configuration layer. fs must already be parsed.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, fmt.Errorf("failed to read --config flag: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys no earlier layer set.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Default()
	// A configured interval list replaces the default one rather than
	// merging into it element by element.
	cfg.Defaults.BoxIntervals = nil
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Defaults = cfg.Defaults.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Validate checks every section, including the default settings.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := domain.RegisterValidations(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Logger builds the process logger described by the log section.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
