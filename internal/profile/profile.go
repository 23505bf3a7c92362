package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tiercache/internal/version"
)

// TierLimits bounds one retention tier of the cache.
type TierLimits struct {
	// MaxCount is the maximum number of entries kept in the tier.
	MaxCount int
	// MaxSizeMB is the cumulative estimated-size ceiling in megabytes.
	MaxSizeMB int
	// DefaultTTL is applied to entries written without an explicit TTL.
	// Zero means entries never expire by TTL.
	DefaultTTL time.Duration
}

// Profile is the configuration to start the cache engine.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where tiercache stores its entry table
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the engine
	Version string

	// Bounded configures the LRU-evicted tier.
	Bounded TierLimits
	// Persistent configures the never-auto-evicted tier.
	Persistent TierLimits

	// Polling configuration for the freshness runner.
	PollingEnabled  bool          // TIERCACHE_POLLING_ENABLED (default: false)
	PollingInterval time.Duration // TIERCACHE_POLLING_INTERVAL (default: 5m)
	BaseLocator     string        // TIERCACHE_BASE_LOCATOR prepended to relative source locators

	// Cleanup configuration for the expired-entry sweep.
	CleanupEnabled  bool          // TIERCACHE_CLEANUP_ENABLED (default: true)
	CleanupInterval time.Duration // TIERCACHE_CLEANUP_INTERVAL (default: 1h)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from TIERCACHE_* environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("TIERCACHE_MODE", p.Mode)
	p.Data = getEnvOrDefault("TIERCACHE_DATA", p.Data)
	p.DSN = getEnvOrDefault("TIERCACHE_DSN", p.DSN)
	p.Driver = getEnvOrDefault("TIERCACHE_DRIVER", p.Driver)

	p.Bounded.MaxCount = getIntEnv("TIERCACHE_BOUNDED_MAX_COUNT", p.Bounded.MaxCount)
	p.Bounded.MaxSizeMB = getIntEnv("TIERCACHE_BOUNDED_MAX_SIZE_MB", p.Bounded.MaxSizeMB)
	p.Bounded.DefaultTTL = getDurationEnv("TIERCACHE_BOUNDED_DEFAULT_TTL", p.Bounded.DefaultTTL)
	p.Persistent.MaxCount = getIntEnv("TIERCACHE_PERSISTENT_MAX_COUNT", p.Persistent.MaxCount)
	p.Persistent.MaxSizeMB = getIntEnv("TIERCACHE_PERSISTENT_MAX_SIZE_MB", p.Persistent.MaxSizeMB)
	p.Persistent.DefaultTTL = getDurationEnv("TIERCACHE_PERSISTENT_DEFAULT_TTL", p.Persistent.DefaultTTL)

	p.PollingEnabled = getBoolEnv("TIERCACHE_POLLING_ENABLED", p.PollingEnabled)
	p.PollingInterval = getDurationEnv("TIERCACHE_POLLING_INTERVAL", p.PollingInterval)
	p.BaseLocator = getEnvOrDefault("TIERCACHE_BASE_LOCATOR", p.BaseLocator)

	p.CleanupEnabled = getBoolEnv("TIERCACHE_CLEANUP_ENABLED", p.CleanupEnabled)
	p.CleanupInterval = getDurationEnv("TIERCACHE_CLEANUP_INTERVAL", p.CleanupInterval)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Version == "" {
		p.Version = version.GetCurrentVersion(p.Mode)
	}

	if p.Bounded.MaxCount <= 0 {
		p.Bounded.MaxCount = 5000
	}
	if p.Bounded.MaxSizeMB <= 0 {
		p.Bounded.MaxSizeMB = 64
	}
	if p.Bounded.DefaultTTL <= 0 {
		p.Bounded.DefaultTTL = 30 * time.Minute
	}
	if p.PollingInterval <= 0 {
		p.PollingInterval = 5 * time.Minute
	}
	if p.CleanupInterval <= 0 {
		p.CleanupInterval = time.Hour
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("tiercache_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	return nil
}
