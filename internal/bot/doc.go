// Package bot runs configured bots.
//
// An Instance owns one platform adapter, a root handler registry, the plugin
// manager that composes plugins into it, and a dispatcher. For every frame the
// adapter delivers, the instance:
//
//  1. packages the payload into a message or event
//  2. drops messages whose id was already dispatched within the dedupe TTL
//  3. dispatches through the handler registry
//  4. records message dispatches in the dispatch log
//
// A Group runs several instances concurrently. FromConfig builds a group from
// configuration; a bot that fails to initialize is logged and skipped.
package bot
