package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Board      BoardConfig      `mapstructure:"board"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Viewport   ViewportConfig   `mapstructure:"viewport"`
	Placement  PlacementConfig  `mapstructure:"placement"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Environment     string        `mapstructure:"environment"`
	HealthCheckPath string        `mapstructure:"health_check_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// BoardConfig holds board dimensions and index granularity
type BoardConfig struct {
	Width     int `mapstructure:"width"`
	Height    int `mapstructure:"height"`
	ChunkSize int `mapstructure:"chunk_size"`
}

// ProjectionConfig holds the isometric cell size in pixels
type ProjectionConfig struct {
	CellWidth  float64 `mapstructure:"cell_width"`
	CellHeight float64 `mapstructure:"cell_height"`
}

// ViewportConfig holds camera limits and culling policy
type ViewportConfig struct {
	MinZoom          float64       `mapstructure:"min_zoom"`
	MaxZoom          float64       `mapstructure:"max_zoom"`
	Margin           float64       `mapstructure:"margin"`
	CullingThreshold int           `mapstructure:"culling_threshold"`
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
}

// PlacementConfig holds validator and preview cache settings
type PlacementConfig struct {
	ProximityRadius  float64            `mapstructure:"proximity_radius"`
	SuggestionRadius int                `mapstructure:"suggestion_radius"`
	MaxSuggestions   int                `mapstructure:"max_suggestions"`
	PreviewCacheSize int64              `mapstructure:"preview_cache_size"`
	TypeWeights      map[string]float64 `mapstructure:"type_weights"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
	Encoding    string `mapstructure:"encoding"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// Set default values
	setDefaults()

	// Setup Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/isoboard")

	// Enable environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Try to read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, continue with env vars and defaults
	}

	// Unmarshal config
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.health_check_path", "/health")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.rate_limit_rps", 50)
	viper.SetDefault("server.rate_limit_burst", 100)

	// Board defaults
	viper.SetDefault("board.width", 100)
	viper.SetDefault("board.height", 100)
	viper.SetDefault("board.chunk_size", 64)

	// Projection defaults
	viper.SetDefault("projection.cell_width", 128)
	viper.SetDefault("projection.cell_height", 64)

	// Viewport defaults
	viper.SetDefault("viewport.min_zoom", 0.1)
	viper.SetDefault("viewport.max_zoom", 3.0)
	viper.SetDefault("viewport.margin", 0.25)
	viper.SetDefault("viewport.culling_threshold", 400)
	viper.SetDefault("viewport.throttle_interval", "16ms")

	// Placement defaults
	viper.SetDefault("placement.proximity_radius", 3)
	viper.SetDefault("placement.suggestion_radius", 3)
	viper.SetDefault("placement.max_suggestions", 3)
	viper.SetDefault("placement.preview_cache_size", 10000)
	viper.SetDefault("placement.type_weights", map[string]float64{})

	// CORS defaults
	viper.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Content-Type", "X-Request-ID"})

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.environment", "development")
	viper.SetDefault("log.encoding", "console")
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age_days", 28)
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	// Validate server config
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if cfg.Server.RateLimitRPS <= 0 || cfg.Server.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}

	// Validate board config
	if cfg.Board.Width < 1 || cfg.Board.Height < 1 {
		return fmt.Errorf("board size must be positive, got %dx%d", cfg.Board.Width, cfg.Board.Height)
	}

	if cfg.Board.ChunkSize < 1 {
		return fmt.Errorf("board chunk size must be at least 1")
	}

	// Validate projection config
	if cfg.Projection.CellWidth <= 0 || cfg.Projection.CellHeight <= 0 {
		return fmt.Errorf("cell size must be positive")
	}

	// Validate viewport config
	if cfg.Viewport.MinZoom <= 0 || cfg.Viewport.MaxZoom < cfg.Viewport.MinZoom {
		return fmt.Errorf("invalid zoom range [%g, %g]", cfg.Viewport.MinZoom, cfg.Viewport.MaxZoom)
	}

	if cfg.Viewport.Margin < 0 {
		return fmt.Errorf("viewport margin cannot be negative")
	}

	if cfg.Viewport.ThrottleInterval < 0 {
		return fmt.Errorf("viewport throttle interval cannot be negative")
	}

	// Validate placement config
	if cfg.Placement.ProximityRadius <= 0 || cfg.Placement.SuggestionRadius < 1 {
		return fmt.Errorf("placement radii must be positive")
	}

	if cfg.Placement.MaxSuggestions < 1 {
		return fmt.Errorf("max suggestions must be at least 1")
	}

	if cfg.Placement.PreviewCacheSize < 1 {
		return fmt.Errorf("preview cache size must be at least 1")
	}

	// Validate log config
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.Log.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}

	validEncodings := []string{"json", "console"}
	if !contains(validEncodings, cfg.Log.Encoding) {
		return fmt.Errorf("invalid log encoding: %s", cfg.Log.Encoding)
	}

	return nil
}

// GetServerAddr returns the server address in host:port format
func (s *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction returns true if the environment is production
func (s *ServerConfig) IsProduction() bool {
	return strings.ToLower(s.Environment) == "production"
}

// IsDevelopment returns true if the environment is development
func (s *ServerConfig) IsDevelopment() bool {
	return strings.ToLower(s.Environment) == "development"
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
