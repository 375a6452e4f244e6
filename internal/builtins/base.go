// ABOUTME: Base plugin with ping, help and catch-all logging handlers
// ABOUTME: Every bot loads it unless plugins.enabled excludes it

package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-bot/internal/handler"
	"github.com/2389/coven-bot/internal/message"
	"github.com/2389/coven-bot/internal/plugin"
)

// BaseID is the base plugin id.
const BaseID = "base"

// Base returns the base plugin registration.
func Base(deps Deps) plugin.Registration {
	return func() (*plugin.Plugin, error) {
		p := plugin.New(BaseID, "Base", "ping, help and error logging")
		p.Version = "1.0.0"
		b := &baseHandlers{deps: deps}

		p.Registry.OnMessage(b.ping, handler.Equal("ping"), handler.Name("base.ping"), handler.AllowDirect(true))
		p.Registry.OnMessage(b.help, handler.Equal("help", "帮助"), handler.Name("base.help"), handler.AllowDirect(true))
		p.Registry.OnException(b.logException)
		p.Registry.OnEvent(b.logEvent)
		return p, nil
	}
}

type baseHandlers struct {
	deps Deps
}

func (b *baseHandlers) ping(_ context.Context, msg *message.Message) (*message.Reply, error) {
	return msg.Reply("pong"), nil
}

func (b *baseHandlers) help(_ context.Context, msg *message.Message) (*message.Reply, error) {
	if b.deps.Plugins == nil {
		return msg.Reply("no plugins loaded"), nil
	}
	plugins := b.deps.Plugins.List()
	if len(plugins) == 0 {
		return msg.Reply("no plugins loaded"), nil
	}

	var sb strings.Builder
	sb.WriteString("Loaded plugins:")
	for _, p := range plugins {
		fmt.Fprintf(&sb, "\n- %s", p.Name)
		if p.Version != "" {
			fmt.Fprintf(&sb, " v%s", p.Version)
		}
		if p.Description != "" {
			fmt.Fprintf(&sb, ": %s", p.Description)
		}
	}
	return msg.Reply(sb.String()), nil
}

func (b *baseHandlers) logException(_ context.Context, err error, in message.Inbound) {
	attrs := []any{"bot", b.deps.Bot, "kind", handler.Classify(err).String(), "error", err}
	switch v := in.(type) {
	case *message.Message:
		attrs = append(attrs, "platform", v.Platform, "message_id", v.MessageID, "user_id", v.UserID)
	case *message.Event:
		attrs = append(attrs, "platform", v.Platform, "event", v.Name)
	}
	b.deps.logger().Error("handler failed", attrs...)
}

func (b *baseHandlers) logEvent(_ context.Context, ev *message.Event) error {
	b.deps.logger().Debug("platform event", "bot", b.deps.Bot, "platform", ev.Platform, "event", ev.Name)
	return nil
}
