// Package config loads process configuration from a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/gridcity/internal/engine"
	"github.com/talgya/gridcity/internal/world"
)

// Config is everything a gridcity binary needs to start.
type Config struct {
	Seed     uint64  `yaml:"seed"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	Treasury float64 `yaml:"treasury"`
	Terrain  bool    `yaml:"terrain"`
	TickRate int     `yaml:"tick_rate"` // ticks per second in interactive mode
	SlowTick uint64  `yaml:"slow_tick"`

	DBPath   string `yaml:"db"`
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`

	// AutosaveDays is the number of sim-days between autosaves; 0 disables.
	AutosaveDays int `yaml:"autosave_days"`
	// StreamEvery pushes an observation to websocket spectators every N
	// ticks.
	StreamEvery uint64 `yaml:"stream_every"`

	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Seed:         42,
		Width:        world.DefaultWidth,
		Height:       world.DefaultHeight,
		Treasury:     100_000,
		Terrain:      true,
		TickRate:     engine.DefaultTickRate,
		SlowTick:     15,
		DBPath:       "data/gridcity.db",
		Port:         8080,
		AutosaveDays: 1,
		StreamEvery:  30,
		Log:          LogConfig{Level: "info"},
		Tracing:      TracingConfig{ServiceName: "gridcity", SampleRatio: 1},
	}
}

// Options converts the city part of the configuration.
func (c Config) Options() engine.Options {
	return engine.Options{
		Width:    c.Width,
		Height:   c.Height,
		Seed:     c.Seed,
		Treasury: c.Treasury,
		SlowTick: c.SlowTick,
		Terrain:  c.Terrain,
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("config: grid %dx%d must be positive", c.Width, c.Height)
	case c.TickRate <= 0:
		return fmt.Errorf("config: tick_rate %d must be positive", c.TickRate)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.Treasury < 0:
		return fmt.Errorf("config: treasury %v must not be negative", c.Treasury)
	case c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1:
		return fmt.Errorf("config: tracing sample_ratio %v outside [0, 1]", c.Tracing.SampleRatio)
	}
	return nil
}

// LoadFile overlays the YAML file at path onto c. A missing file is an
// error; an empty path is a no-op.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays recognised environment variables read through
// lookup, which is os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	if v, ok := lookup("GRIDCITY_SEED"); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("GRIDCITY_SEED: %w", err))
		} else {
			c.Seed = seed
		}
	}
	if v, ok := lookup("GRIDCITY_DB"); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup("GRIDCITY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GRIDCITY_PORT: %w", err))
		} else {
			c.Port = port
		}
	}
	if v, ok := lookup("GRIDCITY_ADMIN_KEY"); ok {
		c.AdminKey = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("TRACING_ENABLED"); ok {
		c.Tracing.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	return errors.Join(errs...)
}

// Flags binds the overridable settings to fs. Values already in c are
// the flag defaults, so parse after LoadFile and ApplyEnv.
func (c *Config) Flags(fs *flag.FlagSet) {
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "world seed")
	fs.IntVar(&c.Width, "width", c.Width, "grid width in cells")
	fs.IntVar(&c.Height, "height", c.Height, "grid height in cells")
	fs.Float64Var(&c.Treasury, "treasury", c.Treasury, "starting treasury")
	fs.BoolVar(&c.Terrain, "terrain", c.Terrain, "generate terrain (false gives flat grass)")
	fs.IntVar(&c.TickRate, "tick-rate", c.TickRate, "ticks per second in interactive mode")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "sqlite database path")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP port")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn or error")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "text or json (default: text on a terminal)")
	fs.BoolVar(&c.Tracing.Enabled, "tracing", c.Tracing.Enabled, "export spans to stderr")
}

// Load builds the configuration for a binary: defaults, then the file
// named by --config, then the environment, then the remaining flags.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	// --config has to be known before the other flags get their defaults.
	path := configPath(args)
	if err := cfg.LoadFile(path); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	fs.String("config", path, "YAML config file")
	cfg.Flags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
