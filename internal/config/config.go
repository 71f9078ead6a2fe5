package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airule-dev/airule/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Known keys with non-empty defaults. Anything else defaults to "".
const (
	// KeySourceCacheTTL controls how long fetched remote sources stay fresh.
	KeySourceCacheTTL = "source_cache_ttl"

	// KeyLockfileMode is the default allow-list enforcement mode ("soft" or
	// "strict") applied when the project config does not set one.
	KeyLockfileMode = "lockfile_mode"
)

// DefaultSourceCacheTTL is used when source_cache_ttl is unset or invalid.
const DefaultSourceCacheTTL = 24 * time.Hour

// Dir returns the path to the Airule config directory (~/.airule/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.airule/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// CacheDir returns the on-disk cache root (~/.airule/cache).
func CacheDir() string {
	return filepath.Join(Dir(), "cache")
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// SourceCacheTTL returns the configured source cache TTL, falling back to
// DefaultSourceCacheTTL when the key is unset or unparseable.
func SourceCacheTTL() time.Duration {
	raw := Get(KeySourceCacheTTL)
	if raw == "" {
		return DefaultSourceCacheTTL
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return DefaultSourceCacheTTL
	}
	return d
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
