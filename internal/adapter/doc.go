// Package adapter defines the capability interface every chat platform
// implements.
//
// The bot core depends only on Adapter. A platform variant lives in its own
// subpackage (kook, matrix) and is responsible for:
//
//   - holding the platform connection (Connect until Close)
//   - turning raw payloads into a *message.Message, a *message.Event, or
//     nothing (PackageMessage)
//   - sending replies and recalling sent messages
//
// # Packaging Contract
//
// Every implementation of PackageMessage must:
//
//  1. suppress messages authored by the platform's bot accounts, except
//     while resolving a quoted message
//  2. resolve a quoted message with one recursive packaging pass per quote
//     level and merge its images into the parent's image list
//  3. confirm that a channel-scoped message's channel still resolves and
//     return nil otherwise
//  4. read role permissions through a short-TTL cache keyed by guild, a
//     failed refetch clearing the stale entry
//
// Platform API failures carrying a status code surface as *APIError.
package adapter
