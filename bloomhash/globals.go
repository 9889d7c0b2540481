package internal

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultConfigPath is the default path to the config file
	DefaultAppName          = "bloomhash"
	DefaultConfigPath       = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultGlobalConfigFile = filepath.Join(DefaultConfigPath, "config.yaml")
	DefaultCatalogPath      = filepath.Join(DefaultConfigPath, "catalog.db")
	DefaultCatalogDSN       = "file:" + DefaultCatalogPath

	// Table layout
	TableSuffix    = ".bloomhash."
	TableExtension = ".dat"
	MetaExtension  = ".size"

	// Validation defaults
	DefaultSampleCount      = 10000
	DefaultSampleLength     = 30
	DefaultMaxPositiveRatio = 0.5
	DefaultWorkers          = 4

	DefaultProgressEvery uint64 = 1_000_000
	DefaultLogLevel             = "info"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetLogLevel sets the global zerolog level from its textual name.
// Unknown names leave the level untouched and return the parse error.
func SetLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
