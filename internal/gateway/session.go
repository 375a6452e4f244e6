// ABOUTME: Session drives one gateway connection through hello, resume and steady state
// ABOUTME: Failed attempts sleep a fixed delay and retry until Close is called

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/coven-bot/internal/store"
)

// Defaults for Config fields left zero.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultAckTimeout        = 30 * time.Second
	DefaultWatchdogPoll      = time.Second
	DefaultRetryDelay        = 10 * time.Second
)

// checkpointTimeout bounds a checkpoint read or write.
const checkpointTimeout = 5 * time.Second

// EventDispatch is the event name FrameHandler receives for dispatch frames.
const EventDispatch = "event"

// State is the lifecycle position of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateSteady
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateSteady:
		return "steady"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FrameHandler receives dispatch payloads. It runs on its own goroutine.
type FrameHandler func(ctx context.Context, eventName string, payload json.RawMessage)

// GatewayResolver returns the websocket URL to connect to. It is called
// whenever no URL is cached.
type GatewayResolver func(ctx context.Context) (string, error)

// Config tunes a Session. Zero durations use the package defaults.
type Config struct {
	HeartbeatInterval time.Duration
	AckTimeout        time.Duration
	WatchdogPoll      time.Duration
	RetryDelay        time.Duration

	// CheckpointKey and Checkpoints enable resume across restarts.
	CheckpointKey string
	Checkpoints   store.CheckpointStore

	// Dialer defaults to WebsocketDialer.
	Dialer Dialer
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.WatchdogPoll <= 0 {
		c.WatchdogPoll = DefaultWatchdogPoll
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Dialer == nil {
		c.Dialer = WebsocketDialer{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is a reconnecting gateway client.
type Session struct {
	cfg     Config
	resolve GatewayResolver
	handler FrameHandler
	seq     *SequenceStore
	logger  *slog.Logger

	state       atomic.Int32
	keepRunning atomic.Bool
	running     atomic.Bool
	attempts    atomic.Int64

	mu          sync.Mutex
	conn        Conn
	monitor     *HeartbeatMonitor
	taskCtx     context.Context
	cancelTasks context.CancelFunc

	tasks     sync.WaitGroup
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session. Nothing is dialed until Run.
func NewSession(resolve GatewayResolver, handler FrameHandler, cfg Config) *Session {
	cfg.applyDefaults()
	taskCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:         cfg,
		resolve:     resolve,
		handler:     handler,
		seq:         &SequenceStore{},
		logger:      cfg.Logger.With("component", "gateway"),
		taskCtx:     taskCtx,
		cancelTasks: cancel,
		wake:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.keepRunning.Store(true)
	return s
}

// Sequence exposes the session's resume state.
func (s *Session) Sequence() *SequenceStore {
	return s.seq
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Attempts returns how many connection attempts have started.
func (s *Session) Attempts() int64 {
	return s.attempts.Load()
}

// Heartbeat returns the heartbeat state of the current socket. The zero
// value is returned when no socket is in Steady.
func (s *Session) Heartbeat() HeartbeatState {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()
	if m == nil {
		return HeartbeatState{}
	}
	return m.State()
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run connects and reconnects until Close is called or ctx is cancelled.
// Connection failures are logged and retried, never returned.
func (s *Session) Run(ctx context.Context) error {
	if !s.keepRunning.Load() {
		return ErrClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.setState(StateDisconnected)

	s.loadCheckpoint(ctx)

	for s.keepRunning.Load() {
		err := s.connect(ctx)
		s.saveCheckpoint(ctx)

		if !s.keepRunning.Load() || ctx.Err() != nil {
			break
		}
		s.setState(StateDisconnected)

		var inv *InvalidationError
		switch {
		case err == nil:
			s.logger.Info("gateway connection closed, reconnecting", "retry_in", s.cfg.RetryDelay)
		case errors.As(err, &inv):
			s.logger.Warn("gateway rejected handshake, cached routing cleared", "code", inv.Code, "retry_in", s.cfg.RetryDelay)
		default:
			s.logger.Warn("gateway connection failed", "error", err, "retry_in", s.cfg.RetryDelay)
		}

		timer := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-timer.C:
		}
		timer.Stop()
	}

	s.logger.Info("gateway session stopped", "last_sequence", s.seq.Last())
	return nil
}

// connect runs one connection lifecycle to completion.
func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)
	attempt := s.attempts.Add(1)

	url := s.seq.GatewayURL()
	if url == "" {
		resolved, err := s.resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolve gateway: %w", err)
		}
		url = resolved
		s.seq.SetGatewayURL(url)
	}

	s.logger.Info("connecting to gateway", "url", url, "attempt", attempt)

	conn, err := s.cfg.Dialer.Dial(ctx, url)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	connCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(connCtx, func() { _ = conn.Close() })

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	var monitor *HeartbeatMonitor
	defer func() {
		cancel(nil)
		stop()
		_ = conn.Close()
		if monitor != nil {
			monitor.Wait()
		}
		s.mu.Lock()
		s.conn = nil
		s.monitor = nil
		s.mu.Unlock()
	}()

	alive := func() bool {
		return s.keepRunning.Load() && connCtx.Err() == nil
	}
	send := func(f *Frame) error {
		data, err := f.Encode()
		if err != nil {
			return err
		}
		return conn.WriteMessage(data)
	}

	s.setState(StateAwaitingHello)

	for alive() {
		data, err := conn.ReadMessage()
		if err != nil {
			if cause := context.Cause(connCtx); cause != nil && !errors.Is(cause, context.Canceled) {
				return cause
			}
			if !s.keepRunning.Load() || ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "read", Err: err}
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			return err
		}
		if frame.SN != nil {
			s.seq.Update(*frame.SN)
		}

		switch frame.S {
		case OpDispatch:
			s.dispatch(frame.D)

		case OpHello:
			hello, err := frame.Hello()
			if err != nil {
				return err
			}
			if hello.Code != 0 {
				s.seq.Invalidate()
				return &InvalidationError{Code: hello.Code}
			}

			s.logger.Info("gateway connected", "session_id", hello.SessionID)
			if last := s.seq.Last(); last != 0 {
				s.logger.Info("resuming gateway session", "sn", last)
				if err := send(ResumeFrame(last)); err != nil {
					return &TransportError{Op: "resume", Err: err}
				}
			}
			s.seq.SetResumeToken(hello.SessionID)
			s.setState(StateSteady)

			if monitor == nil {
				monitor = NewHeartbeatMonitor(HeartbeatConfig{
					Interval:   s.cfg.HeartbeatInterval,
					AckTimeout: s.cfg.AckTimeout,
					Poll:       s.cfg.WatchdogPoll,
				}, send, s.seq.Last, alive, cancel, s.logger)
				s.mu.Lock()
				s.monitor = monitor
				s.mu.Unlock()
				monitor.Start(connCtx)
			}

		case OpHeartbeatAck:
			if monitor != nil {
				monitor.Ack()
			}

		case OpReconnect:
			s.seq.Invalidate()
			return ErrReconnectRequested

		case OpResumeAck:
			s.logger.Info("gateway resume complete")

		default:
			s.logger.Debug("ignoring gateway frame", "opcode", frame.S)
		}
	}
	return context.Cause(connCtx)
}

// dispatch hands a payload to the handler without blocking the read loop.
func (s *Session) dispatch(payload json.RawMessage) {
	ctx := s.taskCtx
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("frame handler panicked", "panic", r)
			}
		}()
		s.handler(ctx, EventDispatch, payload)
	}()
}

func (s *Session) loadCheckpoint(ctx context.Context) {
	if s.cfg.Checkpoints == nil || s.cfg.CheckpointKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, checkpointTimeout)
	defer cancel()

	cp, err := s.cfg.Checkpoints.GetCheckpoint(ctx, s.cfg.CheckpointKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to load gateway checkpoint", "key", s.cfg.CheckpointKey, "error", err)
		}
		return
	}
	s.seq.Restore(cp)
	s.logger.Info("restored gateway checkpoint", "key", cp.Key, "sn", cp.LastSequence)
}

func (s *Session) saveCheckpoint(ctx context.Context) {
	if s.cfg.Checkpoints == nil || s.cfg.CheckpointKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()

	if err := s.cfg.Checkpoints.SaveCheckpoint(ctx, s.seq.Snapshot(s.cfg.CheckpointKey)); err != nil {
		s.logger.Warn("failed to save gateway checkpoint", "key", s.cfg.CheckpointKey, "error", err)
	}
}

// Close stops the session. It waits for the run loop to exit and then for
// in-flight handlers. If ctx expires first the handlers' context is
// cancelled and ctx's error is returned.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("closing gateway session")
		s.keepRunning.Store(false)
		s.setState(StateClosing)
		close(s.wake)

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
	defer s.cancelTasks()

	if s.running.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	idle := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
