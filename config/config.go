package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"treekv/storage"
)

// Config is the treekv node configuration. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML.
type Config struct {
	DataDir     string `toml:"DataDir" yaml:"data_dir"`
	Backend     string `toml:"Backend" yaml:"backend"`
	ServiceName string `toml:"ServiceName" yaml:"service_name"`
	Environment string `toml:"Environment" yaml:"environment"`

	LogLevel string `toml:"LogLevel" yaml:"log_level"`
	LogArgs  bool   `toml:"LogArgs" yaml:"log_args"`
	// LogFile, when set, receives the logs instead of stderr and is rotated
	// once it reaches LogMaxSizeMB.
	LogFile      string `toml:"LogFile" yaml:"log_file"`
	LogMaxSizeMB int    `toml:"LogMaxSizeMB" yaml:"log_max_size_mb"`

	// CallsPerMinute throttles the serve loop. Zero disables throttling.
	CallsPerMinute int `toml:"CallsPerMinute" yaml:"calls_per_minute"`
	// Paused lists method names, or "collections" for all of them, whose
	// mutating calls are rejected.
	Paused []string `toml:"Paused" yaml:"paused"`

	Telemetry Telemetry `toml:"telemetry" yaml:"telemetry"`
}

// Telemetry configures the OTLP trace exporter.
type Telemetry struct {
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		DataDir:     "./treekv-data",
		Backend:     storage.BackendLevelDB,
		ServiceName: "treekv",
		LogLevel:    "info",
	}
}

// Load loads the configuration from the given path, creating a default file
// if none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = storage.BackendLevelDB
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "treekv"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFile != "" && cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = 100
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// StorePath resolves where the configured backend keeps its files.
func (c *Config) StorePath() string {
	if c.Backend == storage.BackendBolt {
		return filepath.Join(c.DataDir, "treekv.db")
	}
	return c.DataDir
}
