package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/wordlens/wordlens/internal/observability"
)

// Engine identifiers known to the service.
const (
	EngineVLM       = "vlm"
	EngineTesseract = "tesseract"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig               `mapstructure:"server"`
	Engines  EnginesConfig              `mapstructure:"engines"`
	Storage  StorageConfig              `mapstructure:"storage"`
	Progress ProgressConfig             `mapstructure:"progress"`
	Scaling  ScalingConfig              `mapstructure:"scaling"`
	Tracing  observability.TracerConfig `mapstructure:"tracing"`
	Debug    bool                       `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// EnginesConfig contains the engine cascade settings. Deadlines are
// per-engine configuration values, not negotiable per request.
type EnginesConfig struct {
	Primary   string          `mapstructure:"primary"`
	Secondary string          `mapstructure:"secondary"`
	VLM       VLMConfig       `mapstructure:"vlm"`
	Tesseract TesseractConfig `mapstructure:"tesseract"`
}

// VLMConfig contains vision-language engine settings
type VLMConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Models            []string      `mapstructure:"models"`
	Deadline          time.Duration `mapstructure:"deadline"`
	MaxImageDimension int           `mapstructure:"max_image_dimension"`
}

// TesseractConfig contains local Tesseract engine settings
type TesseractConfig struct {
	Languages []string      `mapstructure:"languages"`
	Deadline  time.Duration `mapstructure:"deadline"`
}

// StorageConfig contains upload spool settings
type StorageConfig struct {
	SpoolPath     string `mapstructure:"spool_path"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

// ProgressConfig contains progress-broadcast settings
type ProgressConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ChannelBufferSize int           `mapstructure:"channel_buffer_size"`
}

// ScalingConfig selects the pub/sub backend used for cross-instance
// progress delivery.
type ScalingConfig struct {
	Backend  string `mapstructure:"backend"` // local or redis
	RedisURL string `mapstructure:"redis_url"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("wordlens")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/wordlens")

	setDefaults()

	// Enable environment variable support with underscore replacer
	viper.AutomaticEnv()
	viper.SetEnvPrefix("WORDLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env", // For when running from subdirectories
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "60s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 32*1024*1024) // 32MB

	// Engine defaults
	viper.SetDefault("engines.primary", EngineVLM)
	viper.SetDefault("engines.secondary", EngineTesseract)
	viper.SetDefault("engines.vlm.models", []string{"gemini-1.5-flash", "gemini-1.5-pro"})
	viper.SetDefault("engines.vlm.deadline", "30s")
	viper.SetDefault("engines.vlm.max_image_dimension", 1024)
	viper.SetDefault("engines.tesseract.languages", []string{"eng"})
	viper.SetDefault("engines.tesseract.deadline", "60s")

	// Storage defaults
	viper.SetDefault("storage.spool_path", "./uploads")
	viper.SetDefault("storage.max_upload_size", 32*1024*1024) // 32MB

	// Progress defaults
	viper.SetDefault("progress.enabled", true)
	viper.SetDefault("progress.ping_interval", "30s")
	viper.SetDefault("progress.channel_buffer_size", 100)

	// Scaling defaults
	viper.SetDefault("scaling.backend", "local")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "wordlens")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	// General defaults
	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !validEngine(c.Engines.Primary) {
		return fmt.Errorf("unknown primary engine: %s (valid options: %s, %s)",
			c.Engines.Primary, EngineVLM, EngineTesseract)
	}
	if !validEngine(c.Engines.Secondary) {
		return fmt.Errorf("unknown secondary engine: %s (valid options: %s, %s)",
			c.Engines.Secondary, EngineVLM, EngineTesseract)
	}
	if c.Engines.Primary == c.Engines.Secondary {
		return fmt.Errorf("primary and secondary engines must differ")
	}

	if c.Engines.VLM.APIKey == "" {
		return fmt.Errorf("engines.vlm.api_key is required")
	}
	if len(c.Engines.VLM.Models) == 0 {
		return fmt.Errorf("engines.vlm.models must list at least one model")
	}
	if c.Engines.VLM.Deadline <= 0 {
		return fmt.Errorf("engines.vlm.deadline must be positive")
	}
	if c.Engines.Tesseract.Deadline <= 0 {
		return fmt.Errorf("engines.tesseract.deadline must be positive")
	}

	if c.Storage.SpoolPath == "" {
		return fmt.Errorf("storage.spool_path is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	if c.Scaling.Backend != "local" && c.Scaling.Backend != "redis" {
		return fmt.Errorf("scaling backend must be 'local' or 'redis'")
	}
	if c.Scaling.Backend == "redis" && c.Scaling.RedisURL == "" {
		return fmt.Errorf("scaling.redis_url is required for the redis backend")
	}

	return nil
}

// Deadline returns the configured deadline for an engine identifier.
func (ec *EnginesConfig) Deadline(engine string) time.Duration {
	switch engine {
	case EngineVLM:
		return ec.VLM.Deadline
	case EngineTesseract:
		return ec.Tesseract.Deadline
	default:
		return 0
	}
}

func validEngine(name string) bool {
	return name == EngineVLM || name == EngineTesseract
}
