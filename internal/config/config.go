package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvBaseURL = "TERMCHAT_BASE_URL"
	EnvToken   = "TERMCHAT_TOKEN"
)

// Config holds all termchat configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Sync     SyncConfig     `toml:"sync"`
	Messages MessagesConfig `toml:"messages"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
	Accounts AccountsConfig `toml:"accounts"`

	// Token comes only from TERMCHAT_TOKEN and bypasses the keyring.
	Token string `toml:"-"`
}

// ServerConfig describes the chat API endpoint.
type ServerConfig struct {
	BaseURL   string   `toml:"base_url"`
	Timeout   Duration `toml:"timeout"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
}

// SyncConfig holds refresh settings.
type SyncConfig struct {
	Interval     Duration `toml:"interval"`
	HistoryLimit int      `toml:"history_limit"`
	// HistoryFreshFor is how long a fetched message history is reused when a
	// thread is reopened.
	HistoryFreshFor      Duration `toml:"history_fresh_for"`
	PostSendRefreshDelay Duration `toml:"post_send_refresh_delay"`
	MatchWindow          Duration `toml:"match_window"`
}

// MessagesConfig holds outbound message settings.
type MessagesConfig struct {
	MaxLength int      `toml:"max_length"`
	ErrorTTL  Duration `toml:"error_ttl"`
}

type CacheConfig struct {
	PurgeOnExit bool `toml:"purge_on_exit"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AccountsConfig holds account selection settings.
type AccountsConfig struct {
	Default string `toml:"default"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "0" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:8080",
			Timeout:   Duration{10 * time.Second},
			RateLimit: 5,
			Burst:     5,
		},
		Sync: SyncConfig{
			Interval:             Duration{30 * time.Second},
			HistoryLimit:         50,
			HistoryFreshFor:      Duration{15 * time.Second},
			PostSendRefreshDelay: Duration{1500 * time.Millisecond},
			MatchWindow:          Duration{5 * time.Second},
		},
		Messages: MessagesConfig{
			MaxLength: 10000,
			ErrorTTL:  Duration{5 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads config from path. If path is empty or missing, defaults are
// used. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Server.BaseURL = v
	}
	cfg.Token = os.Getenv(EnvToken)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if c.Server.BaseURL == "" {
		return fmt.Errorf("invalid config: server.base_url is empty")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid config: server.rate_limit must not be negative")
	}
	if c.Sync.Interval.Duration <= 0 {
		return fmt.Errorf("invalid config: sync.interval must be positive")
	}
	if c.Messages.MaxLength <= 0 {
		return fmt.Errorf("invalid config: messages.max_length must be positive")
	}
	c.Sync.HistoryLimit = min(max(c.Sync.HistoryLimit, 1), 100)
	return nil
}

// ConfigDir returns the termchat config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "termchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "termchat")
}

// DataDir returns the termchat data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "termchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "termchat")
}
