package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Epub    EpubConfig
	Library LibraryConfig
	Cover   CoverConfig
	Logging LogConfig
}

// EpubConfig holds extraction session configuration.
type EpubConfig struct {
	ScratchDir        string   `envconfig:"EPUB_SCRATCH_DIR"`
	ResourcePrefix    string   `envconfig:"EPUB_RESOURCE_PREFIX" default:"/api/books/resource/"`
	FallbackEncodings []string `envconfig:"EPUB_FALLBACK_ENCODINGS" default:"GBK,ISO-8859-1"`
	Sanitize          bool     `envconfig:"EPUB_SANITIZE" default:"false"`
	MaxEntrySize      int64    `envconfig:"EPUB_MAX_ENTRY_SIZE" default:"268435456"`
}

// LibraryConfig holds resource lookup configuration.
type LibraryConfig struct {
	Dir         string `envconfig:"LIBRARY_DIR" default:"uploads"`
	CacheDir    string `envconfig:"RESOURCE_CACHE_DIR"`
	ArchiveGlob string `envconfig:"RESOURCE_GLOB" default:"**/*.epub"`
}

// CoverConfig holds cover store configuration.
type CoverConfig struct {
	Dir         string `envconfig:"COVER_DIR" default:"covers"`
	JPEGQuality int    `envconfig:"COVER_JPEG_QUALITY" default:"90"`
	MaxWidth    int    `envconfig:"COVER_MAX_WIDTH" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv copies variables from env files into the process environment
// without overriding variables that are already set. With no paths it reads
// ./.env and tolerates its absence.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Epub: EpubConfig{
			ResourcePrefix:    "/api/books/resource/",
			FallbackEncodings: []string{"GBK", "ISO-8859-1"},
			MaxEntrySize:      256 * 1024 * 1024,
		},
		Library: LibraryConfig{
			Dir:         "uploads",
			ArchiveGlob: "**/*.epub",
		},
		Cover: CoverConfig{
			Dir:         "covers",
			JPEGQuality: 90,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
