// ABOUTME: Matrix Adapter running the mautrix sync loop and sending replies
// ABOUTME: Sync callbacks are forwarded to the frame handler on tracked goroutines

package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/message"
	"github.com/2389/coven-bot/internal/ttlcache"
)

// Platform is the adapter name.
const Platform = "matrix"

// EventRoomMessage is the frame handler event name for room messages.
const EventRoomMessage = "m.room.message"

const (
	// DefaultMemberCacheTTL bounds how long a room's member list is reused.
	DefaultMemberCacheTTL = time.Minute
	// DefaultRetryDelay is the pause after a failed sync.
	DefaultRetryDelay = 10 * time.Second

	memberCacheSize = 1024
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("matrix adapter closed")

// Config configures a Matrix adapter.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string

	// Admins are user ids granted the admin flag.
	Admins []string
	// IgnoreUsers are senders whose messages are dropped, usually other bots.
	IgnoreUsers []string

	MemberCacheTTL time.Duration
	RetryDelay     time.Duration
	Logger         *slog.Logger
}

// Adapter is the Matrix implementation of adapter.Adapter.
type Adapter struct {
	cfg     Config
	client  *mautrix.Client
	self    id.UserID
	members *ttlcache.Cache[id.RoomID, []id.UserID]
	logger  *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	startedAt time.Time

	tasks sync.WaitGroup
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a Matrix adapter. Nothing connects until Connect.
func New(cfg Config) (*Adapter, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MemberCacheTTL <= 0 {
		cfg.MemberCacheTTL = DefaultMemberCacheTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Adapter{
		cfg:     cfg,
		client:  client,
		self:    id.UserID(cfg.UserID),
		members: ttlcache.New[id.RoomID, []id.UserID](cfg.MemberCacheTTL, memberCacheSize),
		logger:  cfg.Logger.With("component", "matrix", "user_id", cfg.UserID),
	}, nil
}

// Name returns "matrix".
func (a *Adapter) Name() string { return Platform }

// Client exposes the mautrix client.
func (a *Adapter) Client() *mautrix.Client { return a.client }

// Connect syncs until ctx is cancelled or Close is called. A failed sync
// is retried after RetryDelay.
func (a *Adapter) Connect(ctx context.Context, handle adapter.FrameHandler) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.cancel != nil {
		a.mu.Unlock()
		return fmt.Errorf("matrix adapter already connected")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.startedAt = time.Now()
	a.mu.Unlock()
	defer close(done)
	defer cancel()

	syncer, ok := a.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", a.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		a.forward(ctx, handle, evt)
	})

	a.logger.Info("starting matrix sync", "homeserver", a.cfg.Homeserver)
	for {
		err := a.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn("matrix sync failed, retrying", "error", err, "delay", a.cfg.RetryDelay)

		timer := time.NewTimer(a.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// forward flattens a sync event and hands it to the frame handler without
// blocking the sync loop. Events from before Connect are history and skipped.
func (a *Adapter) forward(ctx context.Context, handle adapter.FrameHandler, evt *event.Event) {
	a.mu.Lock()
	started := a.startedAt
	a.mu.Unlock()
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(started) {
		return
	}

	payload, err := encodeEvent(evt)
	if err != nil {
		a.logger.Warn("failed to encode sync event", "event_id", evt.ID, "error", err)
		return
	}

	a.tasks.Add(1)
	go func() {
		defer a.tasks.Done()
		handle(ctx, EventRoomMessage, payload)
	}()
}

// Close stops syncing, waits for the sync loop to exit, then waits for
// forwarded events until ctx expires.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	cancel := a.cancel
	syncDone := a.done
	a.mu.Unlock()

	if cancel != nil {
		a.client.StopSync()
		cancel()
	}
	defer a.members.Close()

	// forward runs on the sync goroutine, so no task is added once it exits.
	if syncDone != nil {
		select {
		case <-syncDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		a.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChainMessage sends the text as an HTML formatted message, then each
// image as an m.image event.
func (a *Adapter) SendChainMessage(ctx context.Context, reply *message.Reply) ([]message.Receipt, error) {
	if reply.Empty() {
		return nil, nil
	}
	room := reply.ChannelID
	if room == "" {
		return nil, adapter.ErrNoTarget
	}
	roomID := id.RoomID(room)

	var contents []*event.MessageEventContent
	if reply.Text != "" {
		contents = append(contents, textContent(reply.Text))
	}
	for _, img := range reply.Images {
		contents = append(contents, &event.MessageEventContent{
			MsgType: event.MsgImage,
			Body:    "image",
			URL:     id.ContentURIString(img),
		})
	}
	if reply.Quote && reply.Source != nil && reply.Source.MessageID != "" {
		contents[0].RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(reply.Source.MessageID)},
		}
	}

	var receipts []message.Receipt
	var errs []error
	for _, content := range contents {
		resp, err := a.client.SendMessageEvent(ctx, roomID, event.EventMessage, content)
		if err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", content.MsgType, apiError(err, "send")))
			continue
		}
		receipts = append(receipts, message.Receipt{MessageID: resp.EventID.String(), TargetID: room})
	}
	return receipts, errors.Join(errs...)
}

// RecallMessage redacts an event in the room targetID.
func (a *Adapter) RecallMessage(ctx context.Context, messageID, targetID string) error {
	if targetID == "" {
		return adapter.ErrNoTarget
	}
	if _, err := a.client.RedactEvent(ctx, id.RoomID(targetID), id.EventID(messageID)); err != nil {
		return apiError(err, "redact")
	}
	return nil
}

// isAdmin reports whether user is a configured admin.
func (a *Adapter) isAdmin(user id.UserID) bool {
	return slices.Contains(a.cfg.Admins, user.String())
}

// ignored reports whether messages from user are dropped.
func (a *Adapter) ignored(user id.UserID) bool {
	return user == a.self || slices.Contains(a.cfg.IgnoreUsers, user.String())
}

// apiError converts a homeserver error response into an adapter.APIError.
func apiError(err error, endpoint string) error {
	var httpErr mautrix.HTTPError
	if errors.As(err, &httpErr) && httpErr.Response != nil {
		msg := httpErr.Message
		if httpErr.RespError != nil {
			msg = httpErr.RespError.Err
		}
		return &adapter.APIError{Code: httpErr.Response.StatusCode, Message: msg, Endpoint: endpoint}
	}
	return err
}

// roomEvent is the payload forwarded to the frame handler.
type roomEvent struct {
	ID        string          `json:"event_id"`
	RoomID    string          `json:"room_id"`
	Sender    string          `json:"sender"`
	Timestamp int64           `json:"origin_server_ts"`
	Content   json.RawMessage `json:"content"`
}

func encodeEvent(evt *event.Event) (json.RawMessage, error) {
	content := evt.Content.VeryRaw
	if len(content) == 0 {
		raw, err := json.Marshal(&evt.Content)
		if err != nil {
			return nil, err
		}
		content = raw
	}
	return json.Marshal(roomEvent{
		ID:        evt.ID.String(),
		RoomID:    evt.RoomID.String(),
		Sender:    evt.Sender.String(),
		Timestamp: evt.Timestamp,
		Content:   content,
	})
}
