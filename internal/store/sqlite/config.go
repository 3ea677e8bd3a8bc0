package sqlite

import (
	"fmt"
)

type Config struct {
	DatabasePath string
	// BusyTimeout in milliseconds before a locked database returns an error
	BusyTimeout int
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout cannot be negative")
	}
	return nil
}

func (c *Config) GetConnectionString() string {
	timeout := c.BusyTimeout
	if timeout == 0 {
		timeout = 5000
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", c.DatabasePath, timeout)
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./pokedex.db",
		BusyTimeout:  5000,
	}
}
