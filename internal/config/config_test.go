package config

import (
	"testing"
	"time"
)

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/rsvphub?sslmode=disable" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DefaultLocale != "en" {
		t.Errorf("DefaultLocale = %q", cfg.DefaultLocale)
	}
	if cfg.PromoteInterval != 30*time.Second {
		t.Errorf("PromoteInterval = %v", cfg.PromoteInterval)
	}
}

func TestValidateRejectsBadDatabaseURL(t *testing.T) {
	cfg := &Config{DatabaseURL: "not-a-url"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected an error for a URL without scheme or host")
	}
}

func TestValidateDiscordPairing(t *testing.T) {
	cfg := &Config{DiscordToken: "token"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected an error for a token without a channel")
	}

	cfg = &Config{DiscordToken: "token", DiscordChannelID: "abc"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected an error for a non-numeric channel id")
	}

	cfg = &Config{DiscordToken: "token", DiscordChannelID: "123456"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cfg.DiscordEnabled() {
		t.Error("DiscordEnabled() = false, want true")
	}
}
