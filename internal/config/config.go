package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the client configuration, loaded from the environment.
type Config struct {
	// ServerURL is the base URL of the Sandboxed.sh backend API.
	ServerURL string
	// Token is the bearer token used for API and stream auth.
	Token string

	// ConsoleHome is the directory where the client stores local state
	// (mission cache, logs).
	ConsoleHome string

	// LogLevel is the logger threshold (trace|debug|info|warn|error).
	LogLevel string

	// CacheCapacity bounds the persistent mission cache (LRU entries).
	CacheCapacity int
	// PollInterval is the running-missions poll period.
	PollInterval time.Duration

	// Debug enables verbose socket logging.
	Debug bool
}

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	consoleHome := os.Getenv("CONSOLE_HOME_DIR")
	if consoleHome == "" {
		consoleHome = filepath.Join(homeDir, ".sandboxed-console")
	}
	if err := os.MkdirAll(consoleHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create console home: %w", err)
	}

	serverURL := os.Getenv("CONSOLE_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://127.0.0.1:8080"
	}

	cfg := &Config{
		ServerURL:     serverURL,
		Token:         os.Getenv("CONSOLE_TOKEN"),
		ConsoleHome:   consoleHome,
		LogLevel:      os.Getenv("CONSOLE_LOG_LEVEL"),
		CacheCapacity: 10,
		PollInterval:  3 * time.Second,
		Debug:         os.Getenv("CONSOLE_DEBUG") == "1" || os.Getenv("CONSOLE_DEBUG") == "true",
	}

	if raw := os.Getenv("CONSOLE_CACHE_CAPACITY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CONSOLE_CACHE_CAPACITY %q", raw)
		}
		cfg.CacheCapacity = n
	}
	if raw := os.Getenv("CONSOLE_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CONSOLE_POLL_INTERVAL %q", raw)
		}
		cfg.PollInterval = d
	}

	return cfg, nil
}

// CacheDir returns the mission cache directory under the console home.
func (c *Config) CacheDir() string {
	return filepath.Join(c.ConsoleHome, "mission-cache")
}
