package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvToken, "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.BaseURL != "http://localhost:8080" {
		t.Errorf("default base_url = %q, want %q", cfg.Server.BaseURL, "http://localhost:8080")
	}
	if cfg.Sync.Interval.Duration != 30*time.Second {
		t.Errorf("default interval = %v, want 30s", cfg.Sync.Interval.Duration)
	}
	if cfg.Sync.HistoryLimit != 50 {
		t.Errorf("default history_limit = %d, want 50", cfg.Sync.HistoryLimit)
	}
	if cfg.Messages.MaxLength != 10000 {
		t.Errorf("default max_length = %d, want 10000", cfg.Messages.MaxLength)
	}
	if cfg.Cache.PurgeOnExit {
		t.Error("purge_on_exit should default to false")
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `
[server]
base_url = "https://chat.example.com/"
timeout = "3s"

[sync]
interval = "1m"
post_send_refresh_delay = "0"

[cache]
purge_on_exit = true

[log]
level = "debug"
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.BaseURL != "https://chat.example.com" {
		t.Errorf("base_url = %q, want trailing slash trimmed", cfg.Server.BaseURL)
	}
	if cfg.Server.Timeout.Duration != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", cfg.Server.Timeout.Duration)
	}
	if cfg.Sync.Interval.Duration != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Sync.Interval.Duration)
	}
	if cfg.Sync.PostSendRefreshDelay.Duration != 0 {
		t.Errorf("post_send_refresh_delay = %v, want 0", cfg.Sync.PostSendRefreshDelay.Duration)
	}
	if !cfg.Cache.PurgeOnExit {
		t.Error("purge_on_exit = false, want true")
	}
	if cfg.Sync.HistoryLimit != 50 {
		t.Errorf("history_limit = %d, want default 50", cfg.Sync.HistoryLimit)
	}
}

func TestLoad_HistoryLimitClamped(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		value string
		want  int
	}{
		{"0", 1},
		{"500", 100},
		{"20", 20},
	}
	for _, tt := range tests {
		cfg, err := Load(writeConfig(t, "[sync]\nhistory_limit = "+tt.value+"\n"))
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Sync.HistoryLimit != tt.want {
			t.Errorf("history_limit %s => %d, want %d", tt.value, cfg.Sync.HistoryLimit, tt.want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://10.0.0.5:9000")
	t.Setenv(EnvToken, "tok")

	cfg, err := Load(writeConfig(t, "[server]\nbase_url = \"http://ignored\"\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.BaseURL != "http://10.0.0.5:9000" {
		t.Errorf("base_url = %q, want env value", cfg.Server.BaseURL)
	}
	if cfg.Token != "tok" {
		t.Errorf("token = %q, want %q", cfg.Token, "tok")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load() should return defaults for missing file, got error: %v", err)
	}
	if cfg.Sync.Interval.Duration != 30*time.Second {
		t.Errorf("interval = %v, want default 30s", cfg.Sync.Interval.Duration)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "not valid [[ toml"))
	if err == nil {
		t.Fatal("Load() should return error for invalid TOML")
	}
	if !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "failed to parse config")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"bad duration", "[sync]\ninterval = \"soon\"\n"},
		{"zero interval", "[sync]\ninterval = \"0s\"\n"},
		{"negative rate", "[server]\nrate_limit = -1.0\n"},
		{"zero max length", "[messages]\nmax_length = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Load() should reject %s", tt.name)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		dir := ConfigDir()
		want := "/custom/config/termchat"
		if dir != want {
			t.Errorf("ConfigDir() = %q, want %q", dir, want)
		}
	})
	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		dir := ConfigDir()
		if !strings.HasSuffix(dir, filepath.Join(".config", "termchat")) {
			t.Errorf("ConfigDir() = %q, want suffix %q", dir, filepath.Join(".config", "termchat"))
		}
	})
}

func TestDataDir(t *testing.T) {
	t.Run("with XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/custom/data")
		dir := DataDir()
		want := "/custom/data/termchat"
		if dir != want {
			t.Errorf("DataDir() = %q, want %q", dir, want)
		}
	})
	t.Run("without XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "")
		dir := DataDir()
		if !strings.HasSuffix(dir, filepath.Join(".local", "share", "termchat")) {
			t.Errorf("DataDir() = %q, want suffix %q", dir, filepath.Join(".local", "share", "termchat"))
		}
	})
}
