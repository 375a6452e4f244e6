// ABOUTME: Configuration loading and parsing for coven-bot
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported platforms.
const (
	PlatformKOOK   = "kook"
	PlatformMatrix = "matrix"
)

// Defaults applied by Load.
const (
	DefaultHandlerTimeout = 60 * time.Second
	DefaultDedupeTTL      = 5 * time.Minute
	DefaultDedupeSize     = 10000
	DefaultRoleCacheTTL   = 10 * time.Second
	DefaultMemberCacheTTL = time.Minute
)

// Config represents the complete coven-bot configuration
type Config struct {
	Bots     []BotConfig    `yaml:"bots" toml:"bots"`
	Gateway  GatewayConfig  `yaml:"gateway" toml:"gateway"`
	Dispatch DispatchConfig `yaml:"dispatch" toml:"dispatch"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Plugins  PluginsConfig  `yaml:"plugins" toml:"plugins"`
}

// BotConfig describes one bot account.
type BotConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Platform string `yaml:"platform" toml:"platform"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`

	// Token authenticates KOOK bots.
	Token string `yaml:"token" toml:"token"`
	// BaseURL overrides the KOOK API endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	PrefixKeywords []string     `yaml:"prefix_keywords" toml:"prefix_keywords"`
	Matrix         MatrixConfig `yaml:"matrix" toml:"matrix"`
}

// MatrixConfig holds Matrix account settings
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver" toml:"homeserver"`
	UserID      string   `yaml:"user_id" toml:"user_id"`
	AccessToken string   `yaml:"access_token" toml:"access_token"`
	Admins      []string `yaml:"admins" toml:"admins"`
	IgnoreUsers []string `yaml:"ignore_users" toml:"ignore_users"`
}

// GatewayConfig holds websocket gateway timing. Zero values use the
// gateway package defaults.
type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	AckTimeout        time.Duration `yaml:"-" toml:"-"`
	WatchdogPoll      time.Duration `yaml:"-" toml:"-"`
	RetryDelay        time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	AckTimeoutRaw        string `yaml:"ack_timeout" toml:"ack_timeout"`
	WatchdogPollRaw      string `yaml:"watchdog_poll" toml:"watchdog_poll"`
	RetryDelayRaw        string `yaml:"retry_delay" toml:"retry_delay"`
}

// DispatchConfig holds handler dispatch and cache settings
type DispatchConfig struct {
	HandlerTimeout time.Duration `yaml:"-" toml:"-"`
	DedupeTTL      time.Duration `yaml:"-" toml:"-"`
	RoleCacheTTL   time.Duration `yaml:"-" toml:"-"`
	MemberCacheTTL time.Duration `yaml:"-" toml:"-"`
	DedupeSize     int           `yaml:"dedupe_size" toml:"dedupe_size"`

	HandlerTimeoutRaw string `yaml:"handler_timeout" toml:"handler_timeout"`
	DedupeTTLRaw      string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
	RoleCacheTTLRaw   string `yaml:"role_cache_ttl" toml:"role_cache_ttl"`
	MemberCacheTTLRaw string `yaml:"member_cache_ttl" toml:"member_cache_ttl"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// PluginsConfig selects built-in plugins.
type PluginsConfig struct {
	// Enabled lists plugin ids to load. Empty loads all.
	Enabled []string `yaml:"enabled" toml:"enabled"`
}

// Path returns the config file location.
// Priority: COVEN_BOT_CONFIG env var > XDG_CONFIG_HOME/coven/bot.yaml > ~/.config/coven/bot.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_BOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bot.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "bot.yaml")
}

// DataPath returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(expandEnvVars(string(data)), formatOf(path))
}

// Format is a config file syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes already expanded config text, applies defaults and validates.
func Parse(text string, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(text, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Dispatch.DedupeSize == 0 {
		c.Dispatch.DedupeSize = DefaultDedupeSize
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DataPath(), "bot.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Bots {
		c.Bots[i].Platform = strings.ToLower(strings.TrimSpace(c.Bots[i].Platform))
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot is required")
	}

	seen := make(map[string]bool, len(c.Bots))
	for i, b := range c.Bots {
		if b.Name == "" {
			return fmt.Errorf("bots[%d].name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("bots[%d].name %q is duplicated", i, b.Name)
		}
		seen[b.Name] = true

		switch b.Platform {
		case PlatformKOOK:
			if b.Token == "" {
				return fmt.Errorf("bots[%d].token is required for kook", i)
			}
		case PlatformMatrix:
			if err := b.Matrix.validate(); err != nil {
				return fmt.Errorf("bots[%d].matrix: %w", i, err)
			}
		case "":
			return fmt.Errorf("bots[%d].platform is required", i)
		default:
			return fmt.Errorf("bots[%d].platform %q is not supported", i, b.Platform)
		}
	}

	if c.Dispatch.DedupeSize < 0 {
		return fmt.Errorf("dispatch.dedupe_size must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

func (m MatrixConfig) validate() error {
	if m.Homeserver == "" {
		return fmt.Errorf("homeserver is required")
	}
	u, err := url.Parse(m.Homeserver)
	if err != nil {
		return fmt.Errorf("homeserver is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("homeserver must use http or https scheme")
	}
	if m.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if m.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	return nil
}

// EnabledBots returns the bots not marked disabled.
func (c *Config) EnabledBots() []BotConfig {
	var out []BotConfig
	for _, b := range c.Bots {
		if !b.Disabled {
			out = append(out, b)
		}
	}
	return out
}

// durationField pairs a raw config string with its destination.
type durationField struct {
	name string
	raw  string
	dst  *time.Duration
	def  time.Duration
}

// parseDurations converts the raw duration strings into time.Duration values.
// Empty strings take the field default.
func parseDurations(cfg *Config) error {
	fields := []durationField{
		{"gateway.heartbeat_interval", cfg.Gateway.HeartbeatIntervalRaw, &cfg.Gateway.HeartbeatInterval, 0},
		{"gateway.ack_timeout", cfg.Gateway.AckTimeoutRaw, &cfg.Gateway.AckTimeout, 0},
		{"gateway.watchdog_poll", cfg.Gateway.WatchdogPollRaw, &cfg.Gateway.WatchdogPoll, 0},
		{"gateway.retry_delay", cfg.Gateway.RetryDelayRaw, &cfg.Gateway.RetryDelay, 0},
		{"dispatch.handler_timeout", cfg.Dispatch.HandlerTimeoutRaw, &cfg.Dispatch.HandlerTimeout, DefaultHandlerTimeout},
		{"dispatch.dedupe_ttl", cfg.Dispatch.DedupeTTLRaw, &cfg.Dispatch.DedupeTTL, DefaultDedupeTTL},
		{"dispatch.role_cache_ttl", cfg.Dispatch.RoleCacheTTLRaw, &cfg.Dispatch.RoleCacheTTL, DefaultRoleCacheTTL},
		{"dispatch.member_cache_ttl", cfg.Dispatch.MemberCacheTTLRaw, &cfg.Dispatch.MemberCacheTTL, DefaultMemberCacheTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
