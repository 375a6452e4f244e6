// Package builtins provides the plugins shipped with coven-bot.
//
// # Overview
//
// Built-in plugins are ordinary plugin.Registration values. They register
// handlers on their own registry and are composed into each bot's root
// registry by the plugin manager, exactly like external plugins.
//
// # Plugins
//
// Base (base):
//
//   - ping: replies "pong"
//   - help: lists the loaded plugins with their descriptions
//   - a catch-all exception handler that logs every routed error
//   - a wildcard event handler that logs platform events at debug level
//
// Admin (admin), restricted to messages with the admin flag:
//
//   - recent: lists the bot's most recent dispatch log entries
//
// # Registration
//
//	deps := builtins.Deps{Bot: "amiya", Plugins: manager, Dispatches: store}
//	manager.LoadAll(builtins.Select(deps, cfg.Plugins.Enabled)...)
//
// An empty enabled list loads every built-in plugin.
package builtins
