// Package message defines the canonical, platform-agnostic data model that
// handlers operate on.
//
// Adapters convert raw platform payloads into one of two Inbound variants:
//
//   - *Message: a chat message with identity, content and flags
//   - *Event: any other named platform notification
//
// Handlers answer with a *Reply, which the adapter turns back into platform
// calls and acknowledges with one Receipt per message sent.
//
// A Message is immutable once dispatch begins; middleware that wants to
// enrich it either mutates the copy it is handed or attaches values with
// Annotate.
package message
