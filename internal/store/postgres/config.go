package postgres

import (
	"fmt"
	"net/url"
)

type Config struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
	// Table holding the key/value rows
	Table string
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

func (c *Config) GetConnectionString() string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + port,
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}

func (c *Config) tableName() string {
	if c.Table == "" {
		return "pokedex_kv"
	}
	return c.Table
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     "5432",
		Database: "pokedex",
		Username: "postgres",
		SSLMode:  "disable",
		Table:    "pokedex_kv",
	}
}
