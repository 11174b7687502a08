package bootstrap

import (
	"fmt"

	infraconfig "github.com/jonesrussell/north-cloud/index-guard/infrastructure/config"
	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/config"
)

// LoadConfig loads and validates configuration.
func LoadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	logCfg := infralogger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	}
	if cfg.Logging.Output != "" {
		logCfg.OutputPaths = []string{cfg.Logging.Output}
	}

	log, err := infralogger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(infralogger.String("service", cfg.Service.Name)), nil
}
