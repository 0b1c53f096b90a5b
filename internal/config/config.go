// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for parley.
//
// Configuration is read from ~/.parley/config.toml with built-in
// defaults and PARLEY_* environment variable overrides applied last.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete parley configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Chat settings
	Chat ChatConfig `toml:"chat"`

	// Attachment settings
	Attachments AttachmentConfig `toml:"attachments"`

	// UI settings
	UI UIConfig `toml:"ui"`
}

// ServerConfig describes how to reach the document-chat service.
type ServerConfig struct {
	// BaseURL is the root URL of the service.
	BaseURL string `toml:"base_url"`
	// Timeout is the per-request timeout in seconds. Streaming reads
	// are exempt; they run until the server closes the body.
	TimeoutSecs int `toml:"timeout_secs"`
	// RetryAttempts is how many times a busy (503) chat request is
	// tried before giving up.
	RetryAttempts int `toml:"retry_attempts"`
	// RetryDelaySecs is the fixed pause between retries.
	RetryDelaySecs int `toml:"retry_delay_secs"`
	// RequestsPerSecond caps outbound request rate. Zero disables
	// client-side rate limiting.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ChatConfig contains conversation defaults.
type ChatConfig struct {
	// UserName is sent with every exchange.
	UserName string `toml:"user_name"`
	// SystemInstructions is the default persona prompt for new
	// conversations.
	SystemInstructions string `toml:"system_instructions"`
	// TitleMaxRunes caps the auto-derived conversation title length.
	TitleMaxRunes int `toml:"title_max_runes"`
	// Stream requests streamed replies. When false the full reply
	// arrives in one response.
	Stream bool `toml:"stream"`
}

// AttachmentConfig controls the attachment staging area.
type AttachmentConfig struct {
	// StagingDir, when set, is watched for new files to auto-stage.
	StagingDir string `toml:"staging_dir"`
	// MaxStaged caps how many files can be staged at once.
	MaxStaged int `toml:"max_staged"`
}

// UIConfig contains terminal presentation settings.
type UIConfig struct {
	// Theme selects the markdown rendering style: "dark", "light",
	// "notty".
	Theme string `toml:"theme"`
	// ShowCitations toggles the source list under bot replies.
	ShowCitations bool `toml:"show_citations"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:           "http://127.0.0.1:8000",
			TimeoutSecs:       60,
			RetryAttempts:     3,
			RetryDelaySecs:    2,
			RequestsPerSecond: 0,
		},
		Chat: ChatConfig{
			UserName:           "user",
			SystemInstructions: "",
			TitleMaxRunes:      50,
			Stream:             true,
		},
		Attachments: AttachmentConfig{
			StagingDir: "",
			MaxStaged:  20,
		},
		UI: UIConfig{
			Theme:         "dark",
			ShowCitations: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the parley configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the config file if present, falls back to defaults
// otherwise, applies environment overrides, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, err
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML merges the TOML file at path into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// Save writes cfg to the default config path, creating the directory
// if needed.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create config dir: %w", err)
	}
	path := filepath.Join(dir, "config.toml")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENV OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies PARLEY_* environment variables on top of
// whatever was loaded from file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PARLEY_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("PARLEY_USER_NAME"); v != "" {
		c.Chat.UserName = v
	}
	if v := os.Getenv("PARLEY_SYSTEM_INSTRUCTIONS"); v != "" {
		c.Chat.SystemInstructions = v
	}
	if v := os.Getenv("PARLEY_STAGING_DIR"); v != "" {
		c.Attachments.StagingDir = v
	}
	if v := os.Getenv("PARLEY_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("PARLEY_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.TimeoutSecs = n
		}
	}
	if v := os.Getenv("PARLEY_STREAM"); v != "" {
		c.Chat.Stream = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values that would break the
// client at runtime.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url %q is not a valid URL", c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url scheme %q must be http or https", u.Scheme)
	}
	if c.Server.TimeoutSecs <= 0 {
		return fmt.Errorf("server.timeout_secs must be positive, got %d", c.Server.TimeoutSecs)
	}
	if c.Server.RetryAttempts < 1 {
		return fmt.Errorf("server.retry_attempts must be at least 1, got %d", c.Server.RetryAttempts)
	}
	if c.Server.RetryDelaySecs < 0 {
		return fmt.Errorf("server.retry_delay_secs must not be negative, got %d", c.Server.RetryDelaySecs)
	}
	if c.Chat.TitleMaxRunes <= 0 {
		return fmt.Errorf("chat.title_max_runes must be positive, got %d", c.Chat.TitleMaxRunes)
	}
	if c.Attachments.MaxStaged <= 0 {
		return fmt.Errorf("attachments.max_staged must be positive, got %d", c.Attachments.MaxStaged)
	}
	switch c.UI.Theme {
	case "dark", "light", "notty":
	default:
		return fmt.Errorf("ui.theme %q must be one of dark, light, notty", c.UI.Theme)
	}
	return nil
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// RetryDelay returns the retry pause as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Server.RetryDelaySecs) * time.Second
}
