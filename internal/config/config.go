package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string
	HTTPAddr         string
	MigrationsPath   string
	DefaultLocale    string
	PromoteInterval  time.Duration
	DiscordToken     string
	DiscordChannelID string
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional when the variables come from the environment (Docker, CI, etc.).
	}

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		MigrationsPath:   os.Getenv("MIGRATIONS_PATH"),
		DefaultLocale:    os.Getenv("DEFAULT_LOCALE"),
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
	}

	if raw := os.Getenv("PROMOTE_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PROMOTE_INTERVAL (%q): %w", raw, err)
		}
		cfg.PromoteInterval = interval
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate applies all the rules on the loaded configuration.
func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		// Useful local default when DATABASE_URL is not provided.
		c.DatabaseURL = "postgres://localhost:5432/rsvphub?sslmode=disable"
	}

	parsed, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("config: invalid DATABASE_URL (%q): %w", c.DatabaseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: invalid DATABASE_URL (%q): missing scheme or host", c.DatabaseURL)
	}

	if strings.TrimSpace(c.HTTPAddr) == "" {
		c.HTTPAddr = ":8080"
	}
	if strings.TrimSpace(c.MigrationsPath) == "" {
		c.MigrationsPath = "migrations"
	}
	if strings.TrimSpace(c.DefaultLocale) == "" {
		c.DefaultLocale = "en"
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = 30 * time.Second
	}

	// Discord is optional, but a token without a channel (or the reverse)
	// is a misconfiguration.
	hasToken := strings.TrimSpace(c.DiscordToken) != ""
	hasChannel := strings.TrimSpace(c.DiscordChannelID) != ""
	if hasToken != hasChannel {
		return fmt.Errorf("config: DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if hasChannel {
		for _, r := range c.DiscordChannelID {
			if r < '0' || r > '9' {
				return fmt.Errorf("config: DISCORD_CHANNEL_ID must be a Discord channel ID (digits only)")
			}
		}
	}

	return nil
}

// DiscordEnabled reports whether the notification sink should be wired.
func (c *Config) DiscordEnabled() bool {
	return strings.TrimSpace(c.DiscordToken) != ""
}
