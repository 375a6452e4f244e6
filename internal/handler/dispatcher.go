// ABOUTME: Dispatcher routes canonical messages and events through a registry
// ABOUTME: Every user callback is isolated; failures go to exception handlers

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/2389/coven-bot/internal/message"
)

// DefaultHandlerTimeout bounds a single message or event handler call.
const DefaultHandlerTimeout = 60 * time.Second

// Sender delivers replies to the platform.
type Sender interface {
	SendChainMessage(ctx context.Context, reply *message.Reply) ([]message.Receipt, error)
}

// Result describes what happened to one dispatched message or event.
type Result struct {
	// Handler is the chosen message handler, empty when nothing matched.
	Handler string
	// Handled counts handlers invoked: zero or one for messages.
	Handled int
	// Skipped is set when a before-reply hook vetoed the handler.
	Skipped  bool
	Reply    *message.Reply
	Receipts []message.Receipt
	// Err joins every error routed to exception handlers.
	Err error
}

// Dispatcher executes registrations from a registry.
type Dispatcher struct {
	registry *Registry
	sender   Sender
	logger   *slog.Logger
	timeout  time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithHandlerTimeout sets the per-handler timeout. Zero disables it.
func WithHandlerTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a dispatcher over registry that sends replies
// through sender.
func NewDispatcher(registry *Registry, sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		sender:   sender,
		logger:   slog.Default(),
		timeout:  DefaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Dispatch routes a packaged inbound value. Nil input yields an empty result.
func (d *Dispatcher) Dispatch(ctx context.Context, in message.Inbound) *Result {
	switch v := in.(type) {
	case *message.Message:
		return d.DispatchMessage(ctx, v)
	case *message.Event:
		return d.DispatchEvent(ctx, v)
	default:
		return &Result{}
	}
}

// dispatchRun tracks errors for one dispatch.
type dispatchRun struct {
	d    *Dispatcher
	snap *snapshot
	in   message.Inbound
	errs []error
}

// fail routes err to the exception handlers and remembers it.
func (run *dispatchRun) fail(ctx context.Context, err error) {
	run.errs = append(run.errs, err)
	run.d.route(ctx, run.snap, err, run.in)
}

func (run *dispatchRun) err() error {
	return errors.Join(run.errs...)
}

// DispatchMessage runs middleware, selects the single best handler and
// delivers its reply.
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg *message.Message) *Result {
	run := &dispatchRun{d: d, snap: d.registry.snapshot(), in: msg}
	res := &Result{}
	defer func() { res.Err = run.err() }()

	for _, mw := range run.snap.middleware {
		next, err := recoverValue(func() (*message.Message, error) { return mw(ctx, msg) })
		if err != nil {
			run.fail(ctx, fmt.Errorf("middleware %s: %w", funcName(mw), err))
			continue
		}
		if next != nil {
			msg = next
			run.in = msg
		}
	}

	chosen := d.selectHandler(ctx, run, msg)
	if chosen == nil {
		d.logger.Debug("no handler matched", "message_id", msg.MessageID)
		return res
	}
	res.Handler = chosen.name

	for _, hook := range run.snap.before {
		ok, err := recoverValue(func() (bool, error) { return hook(ctx, msg, chosen.name) })
		if err != nil {
			run.fail(ctx, fmt.Errorf("before-reply hook %s: %w", funcName(hook), err))
			continue
		}
		if !ok {
			res.Skipped = true
			d.logger.Debug("before-reply hook vetoed handler", "handler", chosen.name, "message_id", msg.MessageID)
			return res
		}
	}

	res.Handled = 1
	reply, err := callWithTimeout(ctx, d.timeout, func(ctx context.Context) (*message.Reply, error) {
		return chosen.fn(ctx, msg)
	})
	if err != nil {
		run.fail(ctx, fmt.Errorf("handler %s: %w", chosen.name, err))
		return res
	}
	if reply.Empty() {
		return res
	}
	if reply.Source == nil {
		reply.Source = msg
	}
	res.Reply = reply

	if d.sender == nil {
		return res
	}
	receipts, err := d.sender.SendChainMessage(ctx, reply)
	if err != nil {
		run.fail(ctx, fmt.Errorf("send reply from %s: %w", chosen.name, err))
		return res
	}
	res.Receipts = receipts

	for _, hook := range run.snap.after {
		if _, err := recoverValue(func() (struct{}, error) { return struct{}{}, hook(ctx, reply, receipts, chosen.name) }); err != nil {
			run.fail(ctx, fmt.Errorf("after-reply hook %s: %w", funcName(hook), err))
		}
	}
	return res
}

// selectHandler returns the first matching descriptor by descending level.
func (d *Dispatcher) selectHandler(ctx context.Context, run *dispatchRun, msg *message.Message) *Descriptor {
	candidates := slices.Clone(run.snap.messages)
	slices.SortStableFunc(candidates, func(a, b *Descriptor) int {
		return b.level - a.level
	})

	env := matchEnv{prefixes: run.snap.prefixKeywords, groups: run.snap.groups}
	for _, desc := range candidates {
		if !desc.scopeAllows(msg, env) {
			continue
		}
		text, ok := desc.prefixText(msg, env)
		if !ok {
			continue
		}
		if desc.verify != nil {
			matched, err := recoverValue(func() (bool, error) { return desc.verify(ctx, msg), nil })
			if err != nil {
				run.fail(ctx, fmt.Errorf("verify %s: %w", desc.name, err))
				continue
			}
			if matched {
				return desc
			}
			continue
		}
		if desc.keywords.Match(text) {
			return desc
		}
	}
	return nil
}

// DispatchEvent runs every handler for the event name, then every
// AllEvents handler. Each runs regardless of the others' failures.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev *message.Event) *Result {
	run := &dispatchRun{d: d, snap: d.registry.snapshot(), in: ev}
	res := &Result{}

	handlers := slices.Clone(run.snap.events[ev.Name])
	if ev.Name != AllEvents {
		handlers = append(handlers, run.snap.events[AllEvents]...)
	}

	for _, h := range handlers {
		res.Handled++
		_, err := callWithTimeout(ctx, d.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.fn(ctx, ev)
		})
		if err != nil {
			run.fail(ctx, fmt.Errorf("event handler %s for %q: %w", h.name, ev.Name, err))
		}
	}
	res.Err = run.err()
	return res
}

// route sends err to the handlers of the nearest registered kind.
func (d *Dispatcher) route(ctx context.Context, snap *snapshot, err error, in message.Inbound) {
	kind := Classify(err)
	for k := kind; ; {
		if handlers := snap.exceptions[k]; len(handlers) > 0 {
			for _, h := range handlers {
				if _, herr := recoverValue(func() (struct{}, error) { h(ctx, err, in); return struct{}{}, nil }); herr != nil {
					d.logger.Error("exception handler failed", "kind", k, "error", herr, "original_error", err)
				}
			}
			return
		}
		parent, ok := k.Parent()
		if !ok {
			break
		}
		k = parent
	}
	d.logger.Error("unhandled handler error", "kind", kind, "error", err)
}

// recoverValue runs fn, converting a panic into a *PanicError.
func recoverValue[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

type outcome[T any] struct {
	value T
	err   error
}

// callWithTimeout runs fn under a deadline. When the deadline passes first
// the result is abandoned and the context error returned.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return recoverValue(func() (T, error) { return fn(ctx) })
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := recoverValue(func() (T, error) { return fn(ctx) })
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
