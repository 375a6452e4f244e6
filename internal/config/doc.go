// Package config handles configuration loading for coven-bot.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The format is chosen by file extension: ".toml" is decoded
// as TOML, anything else as YAML. Defaults are applied and the result is
// validated before Load returns.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_BOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/bot.yaml
//  3. ~/.config/coven/bot.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bots:
//	  - name: amiya
//	    platform: kook
//	    token: "${KOOK_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	gateway:
//	  heartbeat_interval: "30s"
//	  ack_timeout: "30s"
//	  retry_delay: "10s"
//
// An omitted duration takes its default. handler_timeout: "0s" disables the
// handler timeout.
//
// # Configuration Sections
//
// Bots, one entry per platform account:
//
//	bots:
//	  - name: amiya
//	    platform: kook
//	    token: "${KOOK_TOKEN}"
//	    prefix_keywords: ["amiya", "兔兔"]
//	  - name: amiya-matrix
//	    platform: matrix
//	    matrix:
//	      homeserver: "https://matrix.example.org"
//	      user_id: "@amiya:example.org"
//	      access_token: "${MATRIX_TOKEN}"
//	      admins: ["@doctor:example.org"]
//	      ignore_users: ["@otherbot:example.org"]
//
// Dispatch:
//
//	dispatch:
//	  handler_timeout: "60s"
//	  dedupe_ttl: "5m"
//	  dedupe_size: 10000
//	  role_cache_ttl: "10s"
//	  member_cache_ttl: "1m"
//
// Database:
//
//	database:
//	  path: "/var/lib/coven/bot.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Plugins:
//
//	plugins:
//	  enabled: ["base"]   # empty loads every built-in plugin
//
// # Usage
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
