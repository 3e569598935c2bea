package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Git subprocess configuration
	Git GitConfig `yaml:"git" mapstructure:"git"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Background pre-warm configuration
	Prewarm PrewarmConfig `yaml:"prewarm" mapstructure:"prewarm"`

	// Output configuration
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

type GitConfig struct {
	Binary  string        `yaml:"binary" mapstructure:"binary"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type CacheConfig struct {
	AttributionCapacity int `yaml:"attribution_capacity" mapstructure:"attribution_capacity"`
	ContentCapacity     int `yaml:"content_capacity" mapstructure:"content_capacity"`
}

type PrewarmConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

type OutputConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // "table", "json", "csv"
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Git: GitConfig{
			Binary:  "git",
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			AttributionCapacity: 50,
			ContentCapacity:     100,
		},
		Prewarm: PrewarmConfig{
			RatePerSecond: 4,
			Burst:         2,
		},
		Output: OutputConfig{
			Format: "table",
		},
	}
}

// Load loads configuration from file, environment, and .env files
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("git", cfg.Git)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("prewarm", cfg.Prewarm)
	v.SetDefault("output", cfg.Output)

	v.SetEnvPrefix("BLAMESCOPE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".blamescope")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".blamescope"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".blamescope", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if binary := os.Getenv("BLAMESCOPE_GIT_BINARY"); binary != "" {
		cfg.Git.Binary = binary
	}
	if timeout := os.Getenv("BLAMESCOPE_GIT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Git.Timeout = d
		}
	}
	if capacity := os.Getenv("BLAMESCOPE_ATTRIBUTION_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil && n > 0 {
			cfg.Cache.AttributionCapacity = n
		}
	}
	if capacity := os.Getenv("BLAMESCOPE_CONTENT_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil && n > 0 {
			cfg.Cache.ContentCapacity = n
		}
	}
	if format := os.Getenv("BLAMESCOPE_OUTPUT_FORMAT"); format != "" {
		cfg.Output.Format = format
	}
}
