// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "bot.yaml", `
bots:
  - name: amiya
    platform: KOOK
    token: "kook-token"
    prefix_keywords: ["amiya", "兔兔"]
  - name: amiya-matrix
    platform: matrix
    matrix:
      homeserver: "https://matrix.example.org"
      user_id: "@amiya:example.org"
      access_token: "matrix-token"
      admins: ["@doctor:example.org"]

gateway:
  heartbeat_interval: "25s"
  retry_delay: "5s"

dispatch:
  handler_timeout: "0s"
  dedupe_size: 50

database:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"

plugins:
  enabled: ["base"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Bots) != 2 {
		t.Fatalf("len(Bots) = %d, want 2", len(cfg.Bots))
	}
	kook := cfg.Bots[0]
	if kook.Platform != PlatformKOOK {
		t.Errorf("Bots[0].Platform = %q, want %q", kook.Platform, PlatformKOOK)
	}
	if kook.Token != "kook-token" {
		t.Errorf("Bots[0].Token = %q, want %q", kook.Token, "kook-token")
	}
	if len(kook.PrefixKeywords) != 2 || kook.PrefixKeywords[1] != "兔兔" {
		t.Errorf("Bots[0].PrefixKeywords = %v", kook.PrefixKeywords)
	}
	mx := cfg.Bots[1].Matrix
	if mx.UserID != "@amiya:example.org" || len(mx.Admins) != 1 {
		t.Errorf("Bots[1].Matrix = %+v", mx)
	}

	if cfg.Gateway.HeartbeatInterval != 25*time.Second {
		t.Errorf("Gateway.HeartbeatInterval = %v, want 25s", cfg.Gateway.HeartbeatInterval)
	}
	if cfg.Gateway.RetryDelay != 5*time.Second {
		t.Errorf("Gateway.RetryDelay = %v, want 5s", cfg.Gateway.RetryDelay)
	}
	if cfg.Gateway.AckTimeout != 0 {
		t.Errorf("Gateway.AckTimeout = %v, want 0 (gateway default)", cfg.Gateway.AckTimeout)
	}
	if cfg.Dispatch.HandlerTimeout != 0 {
		t.Errorf("Dispatch.HandlerTimeout = %v, want 0 (disabled)", cfg.Dispatch.HandlerTimeout)
	}
	if cfg.Dispatch.DedupeSize != 50 {
		t.Errorf("Dispatch.DedupeSize = %d, want 50", cfg.Dispatch.DedupeSize)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if len(cfg.Plugins.Enabled) != 1 || cfg.Plugins.Enabled[0] != "base" {
		t.Errorf("Plugins.Enabled = %v", cfg.Plugins.Enabled)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "bot.toml", `
[[bots]]
name = "amiya"
platform = "kook"
token = "kook-token"
prefix_keywords = ["amiya"]

[dispatch]
dedupe_ttl = "2m"
role_cache_ttl = "3s"

[database]
path = "./bot.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Bots) != 1 || cfg.Bots[0].Name != "amiya" {
		t.Fatalf("Bots = %+v", cfg.Bots)
	}
	if cfg.Dispatch.DedupeTTL != 2*time.Minute {
		t.Errorf("Dispatch.DedupeTTL = %v, want 2m", cfg.Dispatch.DedupeTTL)
	}
	if cfg.Dispatch.RoleCacheTTL != 3*time.Second {
		t.Errorf("Dispatch.RoleCacheTTL = %v, want 3s", cfg.Dispatch.RoleCacheTTL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data-home")
	path := writeConfig(t, "bot.yaml", `
bots:
  - name: amiya
    platform: kook
    token: "t"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatch.HandlerTimeout != DefaultHandlerTimeout {
		t.Errorf("HandlerTimeout = %v, want %v", cfg.Dispatch.HandlerTimeout, DefaultHandlerTimeout)
	}
	if cfg.Dispatch.DedupeTTL != DefaultDedupeTTL {
		t.Errorf("DedupeTTL = %v, want %v", cfg.Dispatch.DedupeTTL, DefaultDedupeTTL)
	}
	if cfg.Dispatch.DedupeSize != DefaultDedupeSize {
		t.Errorf("DedupeSize = %d, want %d", cfg.Dispatch.DedupeSize, DefaultDedupeSize)
	}
	if cfg.Dispatch.RoleCacheTTL != DefaultRoleCacheTTL {
		t.Errorf("RoleCacheTTL = %v, want %v", cfg.Dispatch.RoleCacheTTL, DefaultRoleCacheTTL)
	}
	if cfg.Dispatch.MemberCacheTTL != DefaultMemberCacheTTL {
		t.Errorf("MemberCacheTTL = %v, want %v", cfg.Dispatch.MemberCacheTTL, DefaultMemberCacheTTL)
	}
	if want := filepath.Join("/tmp/data-home", "coven", "bot.db"); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_KOOK_TOKEN", "from-env")
	path := writeConfig(t, "bot.yaml", `
bots:
  - name: amiya
    platform: kook
    token: "${TEST_KOOK_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bots[0].Token != "from-env" {
		t.Errorf("Token = %q, want %q", cfg.Bots[0].Token, "from-env")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("TEST_UNSET_TOKEN")
	path := writeConfig(t, "bot.yaml", `
bots:
  - name: amiya
    platform: kook
    token: "${TEST_UNSET_TOKEN}"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for empty token, got nil")
	}
	if !strings.Contains(err.Error(), "token is required") {
		t.Errorf("error = %v, want token is required", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/bot.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "bot.yaml", "bots: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		section string
	}{
		{name: "heartbeat_interval", section: "gateway:\n  heartbeat_interval: \"soon\""},
		{name: "handler_timeout", section: "dispatch:\n  handler_timeout: \"10 parsecs\""},
		{name: "negative", section: "dispatch:\n  dedupe_ttl: \"-1s\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "bot.yaml", "bots:\n  - name: a\n    platform: kook\n    token: t\n"+tt.section+"\n")
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), "parsing durations") {
				t.Errorf("error = %v, want parsing durations", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Bots:     []BotConfig{{Name: "amiya", Platform: PlatformKOOK, Token: "t"}},
			Database: DatabaseConfig{Path: "bot.db"},
			Logging:  LoggingConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no bots", mutate: func(c *Config) { c.Bots = nil }, wantErr: "at least one bot"},
		{name: "missing name", mutate: func(c *Config) { c.Bots[0].Name = "" }, wantErr: "name is required"},
		{name: "duplicate name", mutate: func(c *Config) { c.Bots = append(c.Bots, c.Bots[0]) }, wantErr: "duplicated"},
		{name: "missing platform", mutate: func(c *Config) { c.Bots[0].Platform = "" }, wantErr: "platform is required"},
		{name: "unknown platform", mutate: func(c *Config) { c.Bots[0].Platform = "irc" }, wantErr: "not supported"},
		{name: "matrix missing homeserver", mutate: func(c *Config) {
			c.Bots[0] = BotConfig{Name: "m", Platform: PlatformMatrix, Matrix: MatrixConfig{UserID: "@a:b", AccessToken: "x"}}
		}, wantErr: "homeserver is required"},
		{name: "matrix bad scheme", mutate: func(c *Config) {
			c.Bots[0] = BotConfig{Name: "m", Platform: PlatformMatrix, Matrix: MatrixConfig{Homeserver: "ftp://x", UserID: "@a:b", AccessToken: "x"}}
		}, wantErr: "http or https"},
		{name: "matrix missing token", mutate: func(c *Config) {
			c.Bots[0] = BotConfig{Name: "m", Platform: PlatformMatrix, Matrix: MatrixConfig{Homeserver: "https://x", UserID: "@a:b"}}
		}, wantErr: "access_token is required"},
		{name: "negative dedupe size", mutate: func(c *Config) { c.Dispatch.DedupeSize = -1 }, wantErr: "dedupe_size"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnabledBots(t *testing.T) {
	cfg := &Config{Bots: []BotConfig{{Name: "a"}, {Name: "b", Disabled: true}, {Name: "c"}}}
	got := cfg.EnabledBots()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("EnabledBots() = %+v", got)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("COVEN_BOT_CONFIG", "/etc/coven/custom.yaml")
	if got := Path(); got != "/etc/coven/custom.yaml" {
		t.Errorf("Path() = %q, want env override", got)
	}

	t.Setenv("COVEN_BOT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got, want := Path(), filepath.Join("/xdg", "coven", "bot.yaml"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_A", "alpha")
	t.Setenv("TEST_B", "beta")

	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "${TEST_A}", want: "alpha"},
		{in: "${TEST_A}-${TEST_B}", want: "alpha-beta"},
		{in: "$TEST_A", want: "$TEST_A"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
