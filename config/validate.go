package config

import (
	"fmt"
	"strings"

	"treekv/observability/logging"
	"treekv/storage"
)

func Validate(cfg *Config) error {
	switch cfg.Backend {
	case storage.BackendLevelDB, storage.BackendBolt:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("DataDir required for %s backend", cfg.Backend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.LogMaxSizeMB < 0 {
		return fmt.Errorf("LogMaxSizeMB must not be negative")
	}
	if cfg.CallsPerMinute < 0 {
		return fmt.Errorf("CallsPerMinute must not be negative")
	}
	if cfg.Telemetry.Traces && strings.TrimSpace(cfg.ServiceName) == "" {
		return fmt.Errorf("telemetry: ServiceName required when traces are enabled")
	}
	return nil
}
