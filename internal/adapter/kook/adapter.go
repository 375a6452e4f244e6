// ABOUTME: KOOK Adapter wiring the gateway session, REST client and role cache together
// ABOUTME: Sends replies as kmarkdown text plus one image message per image

package kook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/gateway"
	"github.com/2389/coven-bot/internal/message"
	"github.com/2389/coven-bot/internal/rolecache"
	"github.com/2389/coven-bot/internal/ttlcache"
)

// Config configures a KOOK adapter.
type Config struct {
	Token string
	// ClientOptions customize the REST client.
	ClientOptions []ClientOption
	// Gateway tunes the websocket session.
	Gateway gateway.Config
	// RoleCacheTTL defaults to rolecache.DefaultTTL.
	RoleCacheTTL time.Duration
	Logger       *slog.Logger
}

// Adapter is the KOOK implementation of adapter.Adapter.
type Adapter struct {
	cfg      Config
	client   *Client
	roles    *rolecache.Cache
	channels *ttlcache.Cache[string, struct{}]
	logger   *slog.Logger

	mu      sync.RWMutex
	self    User
	session *gateway.Session
	closed  bool
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a KOOK adapter. Nothing connects until Connect.
func New(cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "kook")
	client := NewClient(cfg.Token, cfg.ClientOptions...)

	ttl := cfg.RoleCacheTTL
	if ttl <= 0 {
		ttl = rolecache.DefaultTTL
	}
	if cfg.Gateway.Logger == nil {
		cfg.Gateway.Logger = cfg.Logger
	}

	return &Adapter{
		cfg:      cfg,
		client:   client,
		roles:    rolecache.New(client.GuildRoles, ttl, rolecache.WithLogger(cfg.Logger)),
		channels: ttlcache.New[string, struct{}](ttl, 1024),
		logger:   logger,
	}
}

// Name returns "kook".
func (a *Adapter) Name() string { return Platform }

// Client exposes the REST client.
func (a *Adapter) Client() *Client { return a.client }

// SelfID returns the bot's user id once Connect has fetched it.
func (a *Adapter) SelfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self.ID
}

// SetSelf records the bot identity without calling /user/me.
func (a *Adapter) SetSelf(u User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.self = u
}

// Connect fetches the bot identity and runs the gateway session until ctx
// is cancelled or Close is called.
func (a *Adapter) Connect(ctx context.Context, handle adapter.FrameHandler) error {
	me, err := a.client.Me(ctx)
	if err != nil {
		a.logger.Warn("failed to fetch bot identity, mentions of the bot will not be detected", "error", err)
	} else {
		a.SetSelf(*me)
		a.logger.Info("bot identity", "id", me.ID, "username", me.Username)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return gateway.ErrClosed
	}
	if a.session == nil {
		a.session = gateway.NewSession(a.client.GatewayURL, gateway.FrameHandler(handle), a.cfg.Gateway)
	}
	session := a.session
	a.mu.Unlock()

	return session.Run(ctx)
}

// Session returns the gateway session, nil before Connect.
func (a *Adapter) Session() *gateway.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Close stops the gateway session and releases caches.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	session := a.session
	a.mu.Unlock()

	a.logger.Info("closing kook adapter", "self_id", a.SelfID())

	var err error
	if session != nil {
		err = session.Close(ctx)
	}
	a.roles.Close()
	a.channels.Close()
	return err
}

// SendChainMessage sends the reply text as kmarkdown, then each image.
func (a *Adapter) SendChainMessage(ctx context.Context, reply *message.Reply) ([]message.Receipt, error) {
	if reply.Empty() {
		return nil, nil
	}
	target, err := adapter.Target(reply)
	if err != nil {
		return nil, err
	}
	direct := reply.IsDirect || reply.ChannelID == ""

	quote := ""
	if reply.Quote && reply.Source != nil {
		quote = reply.Source.MessageID
	}

	var reqs []CreateMessageRequest
	if reply.Text != "" {
		reqs = append(reqs, CreateMessageRequest{Type: TypeKMarkdown, TargetID: target, Content: reply.Text})
	}
	for _, img := range reply.Images {
		reqs = append(reqs, CreateMessageRequest{Type: TypeImage, TargetID: target, Content: img})
	}
	reqs[0].Quote = quote

	var receipts []message.Receipt
	var errs []error
	for _, req := range reqs {
		res, err := a.client.CreateMessage(ctx, direct, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("send type %d message: %w", req.Type, err))
			continue
		}
		receipts = append(receipts, message.Receipt{MessageID: res.MsgID, TargetID: target})
	}
	return receipts, errors.Join(errs...)
}

// RecallMessage deletes a sent message.
func (a *Adapter) RecallMessage(ctx context.Context, messageID, targetID string) error {
	return a.client.DeleteMessage(ctx, messageID)
}
