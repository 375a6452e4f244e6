// ABOUTME: HeartbeatMonitor sends periodic beats and watches for their acks
// ABOUTME: A missed ack forces the socket closed so the session reconnects

package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HeartbeatState is a point-in-time view of heartbeat supervision.
type HeartbeatState struct {
	AckPending bool
	// SinceLastBeat is the time since the last beat was sent, or since the
	// monitor started if none has been sent.
	SinceLastBeat time.Duration
	// SinceBeatSent is how long the pending beat has waited for its ack.
	// Zero when no ack is pending.
	SinceBeatSent time.Duration
}

// HeartbeatConfig controls beat cadence and the ack window.
type HeartbeatConfig struct {
	Interval   time.Duration
	AckTimeout time.Duration
	Poll       time.Duration
}

// HeartbeatMonitor supervises one socket. It is created when the session
// enters Steady and is finished once Wait returns.
type HeartbeatMonitor struct {
	cfg HeartbeatConfig

	send  func(*Frame) error
	last  func() uint64
	alive func() bool
	kill  func(error)

	logger *slog.Logger

	// beats counts beats sent; acked is the beat count covered by the
	// latest ack. An ack is pending while acked < beats.
	beats     atomic.Uint64
	acked     atomic.Uint64
	startedAt time.Time
	lastBeat  atomic.Int64

	wg sync.WaitGroup
}

// NewHeartbeatMonitor creates a monitor. send writes a frame to the socket,
// last reads the current sequence, alive reports whether the socket should
// still be supervised and kill forces the socket closed with a cause.
func NewHeartbeatMonitor(cfg HeartbeatConfig, send func(*Frame) error, last func() uint64, alive func() bool, kill func(error), logger *slog.Logger) *HeartbeatMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHeartbeatInterval
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultWatchdogPoll
	}
	return &HeartbeatMonitor{
		cfg:    cfg,
		send:   send,
		last:   last,
		alive:  alive,
		kill:   kill,
		logger: logger,
	}
}

// Start launches the beat sender. ctx is the socket's context: when it is
// cancelled the sender and all watchdogs exit.
func (h *HeartbeatMonitor) Start(ctx context.Context) {
	h.startedAt = time.Now()
	h.wg.Add(1)
	go h.runSender(ctx)
}

// Ack records a heartbeat ack from the server.
// An ack covers every beat sent before it.
func (h *HeartbeatMonitor) Ack() {
	h.acked.Store(h.beats.Load())
}

// Pending reports whether a beat is awaiting its ack.
func (h *HeartbeatMonitor) Pending() bool {
	return h.acked.Load() < h.beats.Load()
}

// State returns a snapshot of the supervision state.
func (h *HeartbeatMonitor) State() HeartbeatState {
	now := time.Now()
	st := HeartbeatState{AckPending: h.Pending()}

	lb := h.lastBeat.Load()
	switch {
	case lb != 0:
		st.SinceLastBeat = now.Sub(time.Unix(0, lb))
	case !h.startedAt.IsZero():
		st.SinceLastBeat = now.Sub(h.startedAt)
	}
	if st.AckPending && lb != 0 {
		st.SinceBeatSent = st.SinceLastBeat
	}
	return st
}

// Wait blocks until the sender and every watchdog have exited.
func (h *HeartbeatMonitor) Wait() {
	h.wg.Wait()
}

func (h *HeartbeatMonitor) runSender(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !h.alive() {
			return
		}

		// Count the beat before writing it: the ack can be read before
		// send returns.
		sn := h.last()
		h.lastBeat.Store(time.Now().UnixNano())
		beat := h.beats.Add(1)
		if err := h.send(HeartbeatFrame(sn)); err != nil {
			h.kill(&TransportError{Op: "heartbeat", Err: err})
			return
		}
		h.logger.Debug("heartbeat sent", "sn", sn)

		h.wg.Add(1)
		go h.watch(ctx, beat)
	}
}

// watch waits up to AckTimeout for the ack of beat.
func (h *HeartbeatMonitor) watch(ctx context.Context, beat uint64) {
	defer h.wg.Done()

	deadline := time.Now().Add(h.cfg.AckTimeout)
	ticker := time.NewTicker(h.cfg.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if h.acked.Load() >= beat || !h.alive() {
			return
		}
		if !time.Now().Before(deadline) {
			h.logger.Warn("heartbeat ack not received, forcing reconnect", "ack_timeout", h.cfg.AckTimeout)
			h.acked.Store(h.beats.Load())
			h.kill(ErrHeartbeatTimeout)
			return
		}
	}
}
