// ABOUTME: Dependencies shared by built-in plugins and the ordered plugin list
// ABOUTME: Select filters built-ins by configured id

package builtins

import (
	"log/slog"
	"slices"

	"github.com/2389/coven-bot/internal/plugin"
	"github.com/2389/coven-bot/internal/store"
)

// PluginLister reports loaded plugins. plugin.Manager implements it.
type PluginLister interface {
	List() []*plugin.Plugin
}

// Deps are the runtime services built-in handlers use.
type Deps struct {
	// Bot is the owning bot's name, used to scope the dispatch log.
	Bot        string
	Plugins    PluginLister
	Dispatches store.DispatchLog
	Logger     *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Builtin pairs a plugin id with its registration.
type Builtin struct {
	ID       string
	Register plugin.Registration
}

// All returns every built-in plugin in load order.
func All(deps Deps) []Builtin {
	return []Builtin{
		{ID: BaseID, Register: Base(deps)},
		{ID: AdminID, Register: Admin(deps)},
	}
}

// Select returns the registrations whose ids are enabled. An empty list
// enables everything.
func Select(deps Deps, enabled []string) []plugin.Registration {
	var regs []plugin.Registration
	for _, b := range All(deps) {
		if len(enabled) == 0 || slices.Contains(enabled, b.ID) {
			regs = append(regs, b.Register)
		}
	}
	return regs
}
