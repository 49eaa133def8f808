// Package config loads the tankd service configuration from a YAML file.
//
// Every field has a working default, so tankd runs with no file at all.
// A partial file overrides only the keys it names; the optional
// simulation section is layered onto sim.DefaultConfig the same way.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tanksim/tankd/internal/sim"
)

// RedisConfig enables telemetry publishing when Addr is set.
type RedisConfig struct {
	Addr   string `yaml:"addr" json:"addr"`
	Stream string `yaml:"stream,omitempty" json:"stream,omitempty"`
	// MaxLen caps the stream length (approximate trim). Zero keeps the
	// publisher default.
	MaxLen int64 `yaml:"max_len,omitempty" json:"max_len,omitempty"`
}

// Config is the full tankd service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`
	// TickMillis is the wall-clock interval between simulation steps.
	TickMillis int `yaml:"tick_ms" json:"tick_ms"`
	// HistorySize is the in-memory snapshot ring capacity.
	HistorySize int `yaml:"history_size" json:"history_size"`
	// SampleStride persists every Nth snapshot to SQLite. Zero disables
	// persistence of samples.
	SampleStride int `yaml:"sample_stride" json:"sample_stride"`
	// DBPath is the SQLite database path, or ":memory:".
	DBPath string `yaml:"db_path" json:"db_path"`
	// Redis is optional; telemetry publishing is off when Addr is empty.
	Redis RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	// Simulation overrides sim.DefaultConfig. Keys not present keep
	// their defaults; list-valued keys (controllers, initial vectors)
	// replace the default wholesale when present.
	Simulation sim.Config `yaml:"simulation" json:"simulation"`
}

// Default returns the configuration tankd uses with no file.
func Default() Config {
	return Config{
		Listen:       ":8000",
		TickMillis:   1000,
		HistorySize:  7200,
		SampleStride: 1,
		DBPath:       "tankd.db",
		Simulation:   sim.DefaultConfig(),
	}
}

// Load reads path and layers it over Default. A missing file is not an
// error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.TickMillis <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", c.TickMillis)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history_size must be positive, got %d", c.HistorySize)
	}
	if c.SampleStride < 0 {
		return fmt.Errorf("sample_stride must be non-negative, got %d", c.SampleStride)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}

// Tick returns the step interval as a duration.
func (c Config) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}
