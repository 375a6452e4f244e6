// ABOUTME: Admin plugin exposing the dispatch log to admins
// ABOUTME: Non-admins asking for history are refused

package builtins

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389/coven-bot/internal/handler"
	"github.com/2389/coven-bot/internal/message"
	"github.com/2389/coven-bot/internal/plugin"
)

// AdminID is the admin plugin id.
const AdminID = "admin"

const (
	defaultRecentLimit = 5
	maxRecentLimit     = 50
)

// Admin returns the admin plugin registration. It fails when no dispatch
// log is configured.
func Admin(deps Deps) plugin.Registration {
	return func() (*plugin.Plugin, error) {
		if deps.Dispatches == nil {
			return nil, fmt.Errorf("admin plugin requires a dispatch log")
		}
		p := plugin.New(AdminID, "Admin", "dispatch history for admins")
		p.Version = "1.0.0"
		a := &adminHandlers{deps: deps}

		p.Registry.OnMessage(a.recent,
			handler.Regexp(recentCommand),
			handler.Name("admin.recent"),
			handler.Level(10),
			handler.AllowDirect(true),
		)
		return p, nil
	}
}

type adminHandlers struct {
	deps Deps
}

// recentCommand matches "recent" or "recent <n>" after any prefix.
var recentCommand = regexp.MustCompile(`(?:^|\s)recent(?:\s+(\d+))?$`)

func (a *adminHandlers) recent(ctx context.Context, msg *message.Message) (*message.Reply, error) {
	if !msg.IsAdmin {
		return msg.Reply("only admins can read the dispatch history"), nil
	}

	limit := defaultRecentLimit
	if m := recentCommand.FindStringSubmatch(msg.Text); m != nil && m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return msg.Reply("usage: recent [count]"), nil
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := a.deps.Dispatches.ListDispatches(ctx, a.deps.Bot, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	if len(records) == 0 {
		return msg.Reply("no dispatches recorded"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Last %d dispatches:", len(records))
	for _, r := range records {
		name := r.Handler
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&sb, "\n%s %s %s", r.CreatedAt.Format("01-02 15:04:05"), r.UserID, name)
		if r.Error != "" {
			fmt.Fprintf(&sb, " error: %s", r.Error)
		}
	}
	return msg.Reply(sb.String()), nil
}
