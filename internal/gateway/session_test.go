// ABOUTME: Tests for the gateway session state machine against a scripted websocket server
// ABOUTME: Covers dispatch, hello rejection, resume, heartbeat timeout, reconnect and shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/store"
)

func TestSession_DispatchUpdatesSequence(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, got := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)

	sc := gw.accept(t)
	sc.hello(t)
	require.Eventually(t, func() bool { return s.State() == StateSteady }, waitTimeout, 5*time.Millisecond)

	sc.send(t, `{"s":0,"d":{"type":1,"content":"hello"},"sn":42}`)

	select {
	case r := <-got:
		assert.Equal(t, EventDispatch, r.name)
		assert.JSONEq(t, `{"type":1,"content":"hello"}`, string(r.payload))
	case <-time.After(waitTimeout):
		t.Fatal("handler not called")
	}
	assert.Equal(t, uint64(42), s.Sequence().Last())
	assert.Equal(t, "sess-1", s.Sequence().ResumeToken())
	assert.Equal(t, int32(1), resolver.calls.Load())
}

func TestSession_FirstHelloSendsNoResume(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)

	sc := gw.accept(t)
	sc.hello(t)
	sc.expectSilence(t, 100*time.Millisecond)
}

func TestSession_HelloRejectionInvalidatesAndRetries(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	s.Sequence().SetGatewayURL(gw.url)
	s.Sequence().Update(7)
	startSession(t, s)

	first := gw.accept(t)
	assert.Equal(t, int32(0), resolver.calls.Load(), "cached URL is used for the first attempt")
	first.send(t, `{"s":1,"d":{"code":40103}}`)
	first.expectClosed(t)

	second := gw.accept(t)
	assert.Equal(t, int32(1), resolver.calls.Load(), "URL must be re-resolved after rejection")
	assert.Equal(t, uint64(0), s.Sequence().Last())

	// With the sequence cleared there is nothing to resume.
	second.hello(t)
	second.expectSilence(t, 100*time.Millisecond)
	assert.Equal(t, int64(2), s.Attempts())
}

func TestSession_ResumeAfterTransportDrop(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)

	first := gw.accept(t)
	first.hello(t)
	first.send(t, `{"s":0,"d":{},"sn":5}`)
	first.send(t, `{"s":3,"sn":9}`)
	require.Eventually(t, func() bool { return s.Sequence().Last() == 9 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, first.ws.Close())

	second := gw.accept(t)
	second.hello(t)
	resume := second.expect(t)
	assert.Equal(t, OpResume, resume.S)
	require.NotNil(t, resume.SN)
	assert.Equal(t, uint64(9), *resume.SN, "resume carries the sequence held before the drop")
	assert.Equal(t, int32(1), resolver.calls.Load(), "URL stays cached across a transport drop")

	second.send(t, `{"s":6}`)
	require.Eventually(t, func() bool { return s.State() == StateSteady }, waitTimeout, 5*time.Millisecond)
}

func TestSession_SequenceLastWriteWins(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, got := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)

	sc := gw.accept(t)
	sc.hello(t)
	sc.send(t, `{"s":0,"d":{"n":1},"sn":10}`)
	sc.send(t, `{"s":0,"d":{"n":2},"sn":3}`)

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(waitTimeout):
			t.Fatal("handler not called")
		}
	}
	require.Eventually(t, func() bool { return s.Sequence().Last() == 3 }, waitTimeout, 5*time.Millisecond)
}

func TestSession_ReconnectOpcodeClearsCache(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)

	first := gw.accept(t)
	first.hello(t)
	first.send(t, `{"s":0,"d":{},"sn":12}`)
	first.send(t, `{"s":5,"d":{"code":41008,"err":"missing sn"}}`)
	first.expectClosed(t)

	second := gw.accept(t)
	assert.Equal(t, int32(2), resolver.calls.Load())
	assert.Equal(t, uint64(0), s.Sequence().Last())
	assert.Empty(t, s.Sequence().ResumeToken())

	// Nothing is left to resume on the fresh connection.
	second.hello(t)
	second.expectSilence(t, 100*time.Millisecond)
}

func TestSession_MalformedFrameRetries(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)

	first := gw.accept(t)
	first.send(t, `{not json`)
	first.expectClosed(t)

	gw.accept(t)
	assert.Equal(t, int64(2), s.Attempts())
}

func TestSession_HeartbeatTimeoutReconnects(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	cfg := quietConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.AckTimeout = 60 * time.Millisecond
	cfg.WatchdogPoll = 5 * time.Millisecond

	s := NewSession(resolver.resolve, handler, cfg)
	startSession(t, s)

	first := gw.accept(t)
	assert.Equal(t, HeartbeatState{}, s.Heartbeat(), "no monitor before hello")
	first.hello(t)
	first.send(t, `{"s":0,"d":{},"sn":4}`)

	beat := first.expectOp(t, OpHeartbeat)
	require.NotNil(t, beat.SN)
	assert.Equal(t, uint64(4), *beat.SN)
	assert.True(t, s.Heartbeat().AckPending, "beat is awaiting its ack")

	// Never ack: the watchdog must drop the socket and the loop reconnects.
	first.expectClosed(t)
	second := gw.accept(t)
	second.hello(t)

	resume := second.expectOp(t, OpResume)
	assert.Equal(t, uint64(4), *resume.SN)
}

func TestSession_HeartbeatAckKeepsConnection(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	cfg := quietConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.AckTimeout = 200 * time.Millisecond
	cfg.WatchdogPoll = 5 * time.Millisecond

	s := NewSession(resolver.resolve, handler, cfg)
	startSession(t, s)

	sc := gw.accept(t)
	sc.hello(t)

	for i := 0; i < 5; i++ {
		sc.expectOp(t, OpHeartbeat)
		sc.send(t, `{"s":3}`)
	}
	gw.expectNoConnection(t, 50*time.Millisecond)
	assert.Equal(t, int64(1), s.Attempts())
}

func TestSession_CloseDuringBackoff(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	cfg := quietConfig()
	cfg.RetryDelay = time.Hour

	s := NewSession(resolver.resolve, handler, cfg)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	sc := gw.accept(t)
	require.NoError(t, sc.ws.Close())
	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, waitTimeout, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, s.Close(ctx))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
	}
	gw.expectNoConnection(t, 50*time.Millisecond)
	assert.ErrorIs(t, s.Run(context.Background()), ErrClosed)
}

func TestSession_CloseWaitsForHandlers(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	handler := func(ctx context.Context, _ string, _ json.RawMessage) {
		close(started)
		<-release
		finished.Store(true)
	}

	s := NewSession(resolver.resolve, handler, quietConfig())
	go func() { _ = s.Run(context.Background()) }()

	sc := gw.accept(t)
	sc.hello(t)
	sc.send(t, `{"s":0,"d":{},"sn":1}`)
	<-started

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		closed <- s.Close(ctx)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-closed)
	assert.True(t, finished.Load())
}

func TestSession_CloseCancelsStuckHandlers(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	handler := func(ctx context.Context, _ string, _ json.RawMessage) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}

	s := NewSession(resolver.resolve, handler, quietConfig())
	go func() { _ = s.Run(context.Background()) }()

	sc := gw.accept(t)
	sc.hello(t)
	sc.send(t, `{"s":0,"d":{},"sn":1}`)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Close(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	select {
	case <-cancelled:
	case <-time.After(waitTimeout):
		t.Fatal("handler context was not cancelled")
	}
}

func TestSession_RunTwice(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	s := NewSession(resolver.resolve, handler, quietConfig())
	startSession(t, s)
	gw.accept(t)

	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)
}

func TestSession_ResolverFailureRetries(t *testing.T) {
	gw := newFakeGateway(t)
	var calls atomic.Int32
	resolve := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("gateway index unavailable")
		}
		return gw.url, nil
	}
	handler, _ := recordingHandler()

	s := NewSession(resolve, handler, quietConfig())
	startSession(t, s)

	gw.accept(t)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSession_CheckpointResume(t *testing.T) {
	gw := newFakeGateway(t)
	resolver := &countingResolver{url: gw.url}
	handler, _ := recordingHandler()

	st := store.NewMockStore()
	require.NoError(t, st.SaveCheckpoint(context.Background(), &store.Checkpoint{
		Key:          "kook:amiya",
		LastSequence: 77,
		SessionID:    "old-session",
		GatewayURL:   gw.url,
	}))

	cfg := quietConfig()
	cfg.CheckpointKey = "kook:amiya"
	cfg.Checkpoints = st

	s := NewSession(resolver.resolve, handler, cfg)
	startSession(t, s)

	first := gw.accept(t)
	assert.Equal(t, int32(0), resolver.calls.Load(), "checkpointed URL is reused")
	first.hello(t)
	resume := first.expectOp(t, OpResume)
	assert.Equal(t, uint64(77), *resume.SN)

	first.send(t, `{"s":0,"d":{},"sn":80}`)
	require.Eventually(t, func() bool { return s.Sequence().Last() == 80 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, first.ws.Close())
	gw.accept(t)

	cp, err := st.GetCheckpoint(context.Background(), "kook:amiya")
	require.NoError(t, err)
	assert.Equal(t, uint64(80), cp.LastSequence)
	assert.Equal(t, "sess-1", cp.SessionID)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "steady", StateSteady.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "reconnect", OpReconnect.String())
}
