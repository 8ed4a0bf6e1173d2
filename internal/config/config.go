package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is fully environment-sourced. TG_API_ID and TG_API_HASH are
// obtained from https://my.telegram.org and are required; everything else
// has defaults under ~/.readsync.
type Config struct {
	APIID       int
	APIHash     string
	PhoneNumber string // optional; prompted for during sign-in when empty
	SessionPath string
	StatePath   string
}

func DefaultDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".readsync")
}

// FromEnv loads configuration from the environment, reading a .env file
// first when one is present.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	rawID := os.Getenv("TG_API_ID")
	if rawID == "" {
		return nil, fmt.Errorf("TG_API_ID must be set")
	}
	apiID, err := strconv.Atoi(rawID)
	if err != nil {
		return nil, fmt.Errorf("TG_API_ID must be a valid integer: %w", err)
	}

	apiHash := os.Getenv("TG_API_HASH")
	if apiHash == "" {
		return nil, fmt.Errorf("TG_API_HASH must be set")
	}

	dir := DefaultDir()
	cfg := &Config{
		APIID:       apiID,
		APIHash:     apiHash,
		PhoneNumber: os.Getenv("TG_PHONE_NUMBER"),
		SessionPath: filepath.Join(dir, "session.json"),
		StatePath:   filepath.Join(dir, "state.json"),
	}
	if p := os.Getenv("TG_SESSION_PATH"); p != "" {
		cfg.SessionPath = p
	}
	if p := os.Getenv("TG_STATE_PATH"); p != "" {
		cfg.StatePath = p
	}
	return cfg, nil
}

// EnsureDirs creates the parent directories for the session and state files.
func (c *Config) EnsureDirs() error {
	for _, p := range []string{c.SessionPath, c.StatePath} {
		if dir := filepath.Dir(p); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
	}
	return nil
}
