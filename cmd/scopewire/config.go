package main

import (
	"fmt"
	"log/slog"
	"os"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/scopewire"
	"github.com/rawbytedev/scopewire/pkg/compactwire"
	"github.com/rawbytedev/scopewire/pkg/inspect"
)

const envPrefix = "SCOPEWIRE_"

// Config is built from defaults, then the YAML file, then SCOPEWIRE_*
// variables, then command line flags.
type Config struct {
	LogLevel          string `yaml:"log_level"            env:"LOG_LEVEL"`
	Color             bool   `yaml:"color"                env:"COLOR"`
	Codec             string `yaml:"codec"                env:"CODEC"`
	MaxDepth          int    `yaml:"max_depth"            env:"MAX_DEPTH"`
	MaxTypeInfoLength uint32 `yaml:"max_type_info_length" env:"MAX_TYPE_INFO_LENGTH"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:          "warn",
		Color:             true,
		Codec:             compactwire.CodecZstd.String(),
		MaxDepth:          scopewire.DefaultMaxDepth,
		MaxTypeInfoLength: scopewire.DefaultMaxTypeInfoLength,
	}
}

// loadConfig layers path (if any) and the environment over the defaults.
// A nil environ reads the process environment.
func loadConfig(path string, environ map[string]string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = lookupEnv(environ, envPrefix+"CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func lookupEnv(environ map[string]string, key string) string {
	if environ != nil {
		return environ[key]
	}
	return os.Getenv(key)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := compactwire.ParseCodec(c.Codec); err != nil {
		return err
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	if c.MaxTypeInfoLength == 0 {
		return fmt.Errorf("max_type_info_length must be positive")
	}
	return nil
}

func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}

// Walker returns an inspector bounded by the configured limits. segments
// is the number of attached no-copy buffers, or -1 when unknown.
func (c Config) Walker(segments int) inspect.Walker {
	return inspect.Walker{
		MaxDepth:          c.MaxDepth,
		MaxTypeInfoLength: c.MaxTypeInfoLength,
		Segments:          segments,
	}
}
