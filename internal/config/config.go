package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Misc    MiscConfig
}

type ServerConfig struct {
	Port               int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" validate:"min=0"` // zero disables it, event streams stay open
	IdleTimeout        time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutDownTimeout    time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

type StorageConfig struct {
	// Enabled is false when the process runs without persistent storage;
	// stores then behave as plain in-memory values.
	Enabled    bool   `mapstructure:"enabled"`
	Type       string `mapstructure:"type" validate:"oneof=file memory"`
	FilePath   string `mapstructure:"file_path" validate:"required_if=Type file"`
	QuotaBytes int    `mapstructure:"quota_bytes" validate:"min=0"`
	ReadOnly   bool   `mapstructure:"read_only"`
}

type MiscConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	GinMode  string `mapstructure:"gin_mode" validate:"oneof=debug release test"`
}

// LoadConfig reads config.yaml from GO_SYNCSTORE_CONFIG_PATH (default ./config),
// a .env file if present, and GO_SYNCSTORE_* environment variables, in
// increasing order of precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Warnf("cannot load .env file: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnvOrDefault("GO_SYNCSTORE_CONFIG_PATH", "./config"))

	setDefaults(v)

	v.SetEnvPrefix("GO_SYNCSTORE")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Info("No config file found, using defaults and env vars")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	port, err := getEnvOrViperPort(v, "PORT", "server.port")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port = port

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 2*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.file_path", "./config/data/storage.json")
	v.SetDefault("storage.quota_bytes", 5*1024*1024)
	v.SetDefault("storage.read_only", false)

	v.SetDefault("misc.log_level", "info")
	v.SetDefault("misc.gin_mode", "release")
}

var (
	validate       = validator.New()
	envKeyReplacer = strings.NewReplacer(".", "_")
)

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value, or def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// getEnvOrViperPort prefers a plain env var (e.g. PORT set by a platform) over the viper key.
func getEnvOrViperPort(v *viper.Viper, envKey, viperKey string) (int, error) {
	if raw := os.Getenv(envKey); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", envKey, raw, err)
		}
		return port, nil
	}
	return v.GetInt(viperKey), nil
}
