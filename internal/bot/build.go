// ABOUTME: Builds a bot Group from configuration
// ABOUTME: Creates platform adapters and loads the enabled built-in plugins

package bot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/adapter/kook"
	"github.com/2389/coven-bot/internal/adapter/matrix"
	"github.com/2389/coven-bot/internal/builtins"
	"github.com/2389/coven-bot/internal/config"
	"github.com/2389/coven-bot/internal/gateway"
	"github.com/2389/coven-bot/internal/store"
)

// ErrNoBots is returned when no configured bot could be initialized.
var ErrNoBots = errors.New("no bots initialized")

// FromConfig creates an instance for every enabled bot. A bot whose adapter
// cannot be created is logged and skipped.
func FromConfig(cfg *config.Config, st store.Store, logger *slog.Logger) (*Group, error) {
	if logger == nil {
		logger = slog.Default()
	}
	group := NewGroup(logger)

	for _, bc := range cfg.EnabledBots() {
		inst, err := newConfiguredInstance(cfg, bc, st, logger)
		if err != nil {
			logger.Error("bot failed to initialize, skipping", "bot", bc.Name, "platform", bc.Platform, "error", err)
			continue
		}
		group.Add(inst)
	}

	if len(group.Instances()) == 0 {
		return nil, ErrNoBots
	}
	return group, nil
}

func newConfiguredInstance(cfg *config.Config, bc config.BotConfig, st store.Store, logger *slog.Logger) (*Instance, error) {
	ad, err := NewAdapter(cfg, bc, st, logger)
	if err != nil {
		return nil, err
	}

	inst, err := NewInstance(InstanceConfig{
		Name:           bc.Name,
		Adapter:        ad,
		PrefixKeywords: bc.PrefixKeywords,
		HandlerTimeout: cfg.Dispatch.HandlerTimeout,
		DedupeTTL:      cfg.Dispatch.DedupeTTL,
		DedupeSize:     cfg.Dispatch.DedupeSize,
		DispatchLog:    st,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	deps := builtins.Deps{
		Bot:        bc.Name,
		Plugins:    inst.Plugins(),
		Dispatches: st,
		Logger:     logger.With("bot", bc.Name),
	}
	inst.LoadPlugins(builtins.Select(deps, cfg.Plugins.Enabled)...)
	return inst, nil
}

// NewAdapter creates the platform adapter for one bot.
func NewAdapter(cfg *config.Config, bc config.BotConfig, st store.Store, logger *slog.Logger) (adapter.Adapter, error) {
	switch bc.Platform {
	case config.PlatformKOOK:
		var opts []kook.ClientOption
		if bc.BaseURL != "" {
			opts = append(opts, kook.WithBaseURL(bc.BaseURL))
		}
		gw := gateway.Config{
			HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
			AckTimeout:        cfg.Gateway.AckTimeout,
			WatchdogPoll:      cfg.Gateway.WatchdogPoll,
			RetryDelay:        cfg.Gateway.RetryDelay,
			CheckpointKey:     config.PlatformKOOK + ":" + bc.Name,
			Checkpoints:       st,
			Logger:            logger.With("bot", bc.Name),
		}
		return kook.New(kook.Config{
			Token:         bc.Token,
			ClientOptions: opts,
			Gateway:       gw,
			RoleCacheTTL:  cfg.Dispatch.RoleCacheTTL,
			Logger:        logger.With("bot", bc.Name),
		}), nil

	case config.PlatformMatrix:
		mx, err := matrix.New(matrix.Config{
			Homeserver:     bc.Matrix.Homeserver,
			UserID:         bc.Matrix.UserID,
			AccessToken:    bc.Matrix.AccessToken,
			Admins:         bc.Matrix.Admins,
			IgnoreUsers:    bc.Matrix.IgnoreUsers,
			MemberCacheTTL: cfg.Dispatch.MemberCacheTTL,
			RetryDelay:     cfg.Gateway.RetryDelay,
			Logger:         logger.With("bot", bc.Name),
		})
		if err != nil {
			return nil, err
		}
		return mx, nil

	default:
		return nil, fmt.Errorf("unsupported platform %q", bc.Platform)
	}
}
