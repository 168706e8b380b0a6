package config

import (
	"fmt"

	"github.com/danghamo/isoboard/pkg/logger"
)

// Initialize loads configuration and sets up global logger
func Initialize() (*Config, *logger.Logger, error) {
	// Load configuration
	cfg, err := Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Log.LoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Set global logger
	logger.SetGlobalLogger(appLogger)

	// Log successful initialization
	fields := map[string]interface{}{
		"environment":  cfg.Server.Environment,
		"server_port":  cfg.Server.Port,
		"board_width":  cfg.Board.Width,
		"board_height": cfg.Board.Height,
		"chunk_size":   cfg.Board.ChunkSize,
		"log_level":    cfg.Log.Level,
		"log_encoding": cfg.Log.Encoding,
	}
	appLogger.WithFields(fields).Info("Configuration and logger initialized successfully")

	return cfg, appLogger, nil
}

// MustInitialize is like Initialize but panics on error
func MustInitialize() (*Config, *logger.Logger) {
	cfg, appLogger, err := Initialize()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize application: %v", err))
	}
	return cfg, appLogger
}

// LoggerConfig converts the log section into a logger configuration
func (l LogConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       logger.ParseLevel(l.Level),
		Environment: l.Environment,
		Encoding:    l.Encoding,
		File:        l.File,
		MaxSizeMB:   l.MaxSizeMB,
		MaxBackups:  l.MaxBackups,
		MaxAgeDays:  l.MaxAgeDays,
	}
}
