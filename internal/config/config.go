// Package config reads settings from the environment, with command-line
// flags taking precedence.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config is shared by the API server and the command-line tools.
type Config struct {
	Port      int    `env:"PORT"            envDefault:"8080"`
	Catalog   string `env:"W40K_CATALOG"`
	MaxRounds int    `env:"W40K_MAX_ROUNDS" envDefault:"100"`
	Workers   int    `env:"W40K_WORKERS"    envDefault:"0"`
	LogLevel  string `env:"W40K_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"W40K_LOG_FORMAT" envDefault:"console"`
	APIBase   string `env:"W40K_API_BASE"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Parse reads the environment and returns the resulting Config.
func Parse() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RegisterFlags binds the common settings to fs, defaulting to the values
// already in cfg.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&cfg.Catalog, "catalog", cfg.Catalog, "unit catalog YAML (empty for the built-in one)")
	fs.IntVar(&cfg.MaxRounds, "max-rounds", cfg.MaxRounds, "rounds before a battle is declared a draw")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "batch workers (0 for one per CPU)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
}

// Validate checks every setting the API server uses.
func (cfg Config) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	return cfg.ValidateSim()
}

// ValidateSim checks the settings shared by every command that fights
// battles. The command-line tools never listen, so they skip the port.
func (cfg Config) ValidateSim() error {
	if cfg.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be positive, got %d", cfg.MaxRounds)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	return nil
}

// Addr is the listen address for Port.
func (cfg Config) Addr() string {
	return fmt.Sprintf(":%d", cfg.Port)
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
