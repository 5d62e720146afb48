package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// ConfigLoader loads and validates the dungeon catalog from a JSON file.
type ConfigLoader struct {
	configPath string
	validator  *Validator
	logger     *slog.Logger
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(configPath string, logger *slog.Logger) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
		validator:  NewValidator(),
		logger:     logger,
	}
}

// LoadConfig loads the catalog file and returns a validated Config.
// Invalid config prevents startup; this is a fail-fast operation.
func (l *ConfigLoader) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := l.validator.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.logger.Info("Dungeon catalog loaded",
		"dungeons", len(config.Dungeons),
		"config_path", l.configPath,
	)

	return &config, nil
}
