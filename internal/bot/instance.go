// ABOUTME: Bot Instance joining an adapter, its plugins and the dispatcher
// ABOUTME: Dedupes redelivered messages and records every dispatch

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/handler"
	"github.com/2389/coven-bot/internal/message"
	"github.com/2389/coven-bot/internal/plugin"
	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/ttlcache"
)

// Defaults for InstanceConfig.
const (
	DefaultDedupeTTL  = 5 * time.Minute
	DefaultDedupeSize = 10000
)

// ErrNoAdapter is returned when an instance is created without an adapter.
var ErrNoAdapter = errors.New("bot has no adapter")

// InstanceConfig configures an Instance.
type InstanceConfig struct {
	Name    string
	Adapter adapter.Adapter

	PrefixKeywords []string
	// HandlerTimeout bounds each handler call. Zero disables it.
	HandlerTimeout time.Duration
	DedupeTTL      time.Duration
	// DedupeSize caps remembered message ids. Negative means unbounded.
	DedupeSize int

	// DispatchLog records dispatched messages when set.
	DispatchLog store.DispatchLog
	Logger      *slog.Logger
}

// Instance is one running bot.
type Instance struct {
	name       string
	adapter    adapter.Adapter
	root       *handler.Registry
	plugins    *plugin.Manager
	dispatcher *handler.Dispatcher
	dedupe     *ttlcache.Cache[string, struct{}]
	log        store.DispatchLog
	logger     *slog.Logger
}

// NewInstance creates a bot with an empty root registry.
func NewInstance(cfg InstanceConfig) (*Instance, error) {
	if cfg.Adapter == nil {
		return nil, ErrNoAdapter
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Adapter.Name()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = DefaultDedupeTTL
	}
	if cfg.DedupeSize == 0 {
		cfg.DedupeSize = DefaultDedupeSize
	}
	logger := cfg.Logger.With("bot", cfg.Name, "platform", cfg.Adapter.Name())

	root := handler.NewRegistry()
	root.AddPrefixKeywords(cfg.PrefixKeywords...)

	return &Instance{
		name:    cfg.Name,
		adapter: cfg.Adapter,
		root:    root,
		plugins: plugin.NewManager(root, logger),
		dispatcher: handler.NewDispatcher(root, cfg.Adapter,
			handler.WithLogger(logger),
			handler.WithHandlerTimeout(cfg.HandlerTimeout),
		),
		dedupe: ttlcache.New[string, struct{}](cfg.DedupeTTL, cfg.DedupeSize),
		log:    cfg.DispatchLog,
		logger: logger.With("component", "bot"),
	}, nil
}

// Name returns the bot name.
func (i *Instance) Name() string { return i.name }

// Adapter returns the platform adapter.
func (i *Instance) Adapter() adapter.Adapter { return i.adapter }

// Registry returns the root registry. Handlers registered on it directly
// take part in dispatch alongside plugin handlers.
func (i *Instance) Registry() *handler.Registry { return i.root }

// Plugins returns the plugin manager.
func (i *Instance) Plugins() *plugin.Manager { return i.plugins }

// LoadPlugins loads registrations, skipping ones that fail.
func (i *Instance) LoadPlugins(regs ...plugin.Registration) []*plugin.Plugin {
	return i.plugins.LoadAll(regs...)
}

// Run connects the adapter and handles frames until ctx is cancelled or
// the adapter is closed.
func (i *Instance) Run(ctx context.Context) error {
	i.logger.Info("starting bot", "plugins", i.plugins.IDs())
	err := i.adapter.Connect(ctx, func(ctx context.Context, eventName string, payload json.RawMessage) {
		i.HandlePayload(ctx, eventName, payload)
	})
	if err != nil {
		return fmt.Errorf("bot %s: %w", i.name, err)
	}
	return nil
}

// HandlePayload packages and dispatches one frame. It returns nil when the
// payload produced nothing to dispatch.
func (i *Instance) HandlePayload(ctx context.Context, eventName string, payload json.RawMessage) *handler.Result {
	in, err := i.adapter.PackageMessage(ctx, eventName, payload)
	if err != nil {
		i.logger.Warn("failed to package payload", "event", eventName, "error", err)
		return nil
	}
	if in == nil {
		return nil
	}

	msg, isMessage := in.(*message.Message)
	if isMessage && msg.MessageID != "" {
		if i.dedupe.SetIfAbsent(msg.Platform+":"+msg.MessageID, struct{}{}) {
			i.logger.Debug("dropping duplicate message", "message_id", msg.MessageID)
			return nil
		}
	}

	res := i.dispatcher.Dispatch(ctx, in)
	if isMessage {
		i.record(ctx, msg, res)
	}
	return res
}

func (i *Instance) record(ctx context.Context, msg *message.Message, res *handler.Result) {
	if i.log == nil {
		return
	}
	rec := &store.DispatchRecord{
		ID:        uuid.NewString(),
		Bot:       i.name,
		Platform:  msg.Platform,
		MessageID: msg.MessageID,
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
		Handler:   res.Handler,
		Replied:   len(res.Receipts) > 0,
		CreatedAt: time.Now(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := i.log.RecordDispatch(ctx, rec); err != nil {
		i.logger.Warn("failed to record dispatch", "message_id", msg.MessageID, "error", err)
	}
}

// SendMessage sends an active message not tied to an incoming one.
func (i *Instance) SendMessage(ctx context.Context, reply *message.Reply) ([]message.Receipt, error) {
	receipts, err := i.adapter.SendChainMessage(ctx, reply)
	if err != nil {
		return receipts, fmt.Errorf("send message: %w", err)
	}
	return receipts, nil
}

// Recall deletes a message the bot sent.
func (i *Instance) Recall(ctx context.Context, receipt message.Receipt) error {
	return i.adapter.RecallMessage(ctx, receipt.MessageID, receipt.TargetID)
}

// Close closes the adapter and releases the dedupe cache.
func (i *Instance) Close(ctx context.Context) error {
	defer i.dedupe.Close()
	i.logger.Info("stopping bot")
	return i.adapter.Close(ctx)
}
