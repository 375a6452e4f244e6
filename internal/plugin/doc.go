// Package plugin loads plugins into a bot's root handler registry.
//
// A plugin is a value, not a module on disk: a Registration function builds
// a Plugin carrying its own handler.Registry, and the Manager composes that
// registry into the root with handler.Combine.
//
//	mgr := plugin.NewManager(root, logger)
//	mgr.LoadAll(builtins.Base(mgr), weather.Register)
//
// A registration that fails, or that reuses a loaded plugin id, is reported
// and skipped; the remaining plugins still load.
package plugin
