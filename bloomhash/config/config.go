package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/hashing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a loaded setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Bloomhash BloomhashConfig `mapstructure:"bloomhash"`
}

// BloomhashConfig stores the table build, validation and catalog settings.
type BloomhashConfig struct {
	Methods    []string         `mapstructure:"methods"`
	LogLevel   string           `mapstructure:"logLevel"`
	Build      BuildConfig      `mapstructure:"build"`
	Validation ValidationConfig `mapstructure:"validation"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
}

// BuildConfig stores builder settings.
type BuildConfig struct {
	ProgressEvery uint64 `mapstructure:"progressEvery"`
}

// ValidationConfig stores validator settings.
type ValidationConfig struct {
	SampleCount      int     `mapstructure:"sampleCount"`
	SampleLength     int     `mapstructure:"sampleLength"`
	MaxPositiveRatio float64 `mapstructure:"maxPositiveRatio"`
	Workers          int     `mapstructure:"workers"`
}

// CatalogConfig stores where build and validation history is kept.
type CatalogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
// With an empty configPath the usual locations are searched and a missing
// file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viper.Reset()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("bloomhash.methods", []string{"sha256"})
	viper.SetDefault("bloomhash.logLevel", internal.DefaultLogLevel)
	viper.SetDefault("bloomhash.build.progressEvery", internal.DefaultProgressEvery)
	viper.SetDefault("bloomhash.validation.sampleCount", internal.DefaultSampleCount)
	viper.SetDefault("bloomhash.validation.sampleLength", internal.DefaultSampleLength)
	viper.SetDefault("bloomhash.validation.maxPositiveRatio", internal.DefaultMaxPositiveRatio)
	viper.SetDefault("bloomhash.validation.workers", internal.DefaultWorkers)
	viper.SetDefault("bloomhash.catalog.enabled", false)
	viper.SetDefault("bloomhash.catalog.dsn", internal.DefaultCatalogDSN)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // bloomhash.catalog.dsn becomes BLOOMHASH_CATALOG_DSN

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	AppConfig = Config{}
	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := AppConfig.Validate(); err != nil {
		return nil, err
	}

	return &AppConfig, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	b := c.Bloomhash

	if len(b.Methods) == 0 {
		return fmt.Errorf("%w: no hash methods", ErrInvalidConfig)
	}
	for _, m := range b.Methods {
		if !hashing.Default().Has(m) {
			return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, common.ErrUnknownHashMethod, m)
		}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(b.LogLevel)); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, b.LogLevel)
	}
	if b.Validation.SampleCount <= 0 || b.Validation.SampleLength <= 0 {
		return fmt.Errorf("%w: sample count and length must be positive", ErrInvalidConfig)
	}
	if b.Validation.MaxPositiveRatio <= 0 || b.Validation.MaxPositiveRatio > 1 {
		return fmt.Errorf("%w: maxPositiveRatio %v not in (0, 1]", ErrInvalidConfig, b.Validation.MaxPositiveRatio)
	}
	if b.Catalog.Enabled && b.Catalog.DSN == "" {
		return fmt.Errorf("%w: catalog enabled without a dsn", ErrInvalidConfig)
	}
	return nil
}
