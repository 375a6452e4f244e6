// ABOUTME: Entry point for coven-bot
// ABOUTME: Runs the configured chat bots until interrupted

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-bot/internal/bot"
	"github.com/2389/coven-bot/internal/config"
	"github.com/2389/coven-bot/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                   _           _
  ___ _____   _____ _ __          | |__   ___ | |_
 / __/ _ \ \ / / _ \ '_ \ _____   | '_ \ / _ \| __|
| (_| (_) \ V /  __/ | | |_____|  | |_) | (_) | |_
 \___\___/ \_/ \___|_| |_|        |_.__/ \___/ \__|
`

const shutdownTimeout = 15 * time.Second

const sampleConfig = `# coven-bot configuration
bots:
  - name: amiya
    platform: kook
    token: "${KOOK_TOKEN}"
    prefix_keywords: ["amiya"]

gateway:
  heartbeat_interval: "30s"
  ack_timeout: "30s"
  retry_delay: "10s"

dispatch:
  handler_timeout: "60s"
  dedupe_ttl: "5m"
  role_cache_ttl: "10s"

logging:
  level: "info"
  format: "text"
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-bot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Run the configured bots")
		fmt.Println("  check     Validate the config file")
		fmt.Println("  init      Write a sample config file")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "check":
		err = runCheck()
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	group, err := bot.FromConfig(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("creating bots: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	for _, inst := range group.Instances() {
		green.Print("    ▶ ")
		fmt.Printf("Bot:       %s ", inst.Name())
		cyan.Printf("[%s]", inst.Adapter().Name())
		gray.Printf(" plugins: %v\n", inst.Plugins().IDs())
	}
	fmt.Println()

	logger.Info("starting coven-bot", "config", configPath, "bots", len(group.Instances()))

	runErr := make(chan error, 1)
	go func() { runErr <- group.Run(ctx) }()

	var groupErr error
	stopped := false
	select {
	case <-ctx.Done():
	case groupErr = <-runErr:
		stopped = true
		if groupErr != nil {
			logger.Error("bot group stopped", "error", groupErr)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := group.Close(shutdownCtx)

	if !stopped {
		select {
		case groupErr = <-runErr:
		case <-shutdownCtx.Done():
			return errors.Join(closeErr, fmt.Errorf("bots did not stop within %s", shutdownTimeout))
		}
	}
	return errors.Join(groupErr, closeErr)
}

func runCheck() error {
	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %s is valid\n", configPath)
	for _, b := range cfg.Bots {
		state := "enabled"
		if b.Disabled {
			state = "disabled"
		}
		fmt.Printf("  %s (%s, %s)\n", b.Name, b.Platform, state)
	}
	return nil
}

func runInit() error {
	configPath := config.Path()
	if _, err := os.Stat(configPath); err == nil {
		color.New(color.FgYellow).Printf("Config already exists at %s\n", configPath)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	color.New(color.FgGreen).Printf("✓ wrote %s\n", configPath)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
