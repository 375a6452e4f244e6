// Package handler holds handler registrations and dispatches canonical
// messages and events through them.
//
// # Registry
//
// A Registry is an ordered bag of registrations:
//
//   - message handlers (Descriptor: keyword set or verify func, level,
//     group, direct-message scope, prefix rule)
//   - event handlers keyed by event name, plus AllEvents for every event
//   - exception handlers keyed by Kind
//   - before-reply and after-reply hooks
//   - message middleware
//   - group configs keyed by group id
//   - prefix keywords
//
// Registries compose with Combine: sequences are appended, handler maps are
// unioned with their lists appended, and group configs are overwritten by
// key. Nothing is deduplicated, so combining the same source twice doubles
// its entries.
//
// # Message Dispatch
//
// For each message the Dispatcher:
//
//  1. runs every middleware in registration order
//  2. collects the handlers whose scope, prefix rule and predicate match
//  3. picks the first candidate by descending level, ties going to the
//     earlier registration
//  4. runs before-reply hooks (any hook may veto the reply)
//  5. calls the handler and sends its reply through the Sender
//  6. runs after-reply hooks if a reply was produced and sent
//
// Events skip middleware and go to every handler for the event name, then
// every AllEvents handler, each independently.
//
// # Error Isolation
//
// Every call into user code recovers panics and captures errors. Errors are
// classified into a Kind and routed to the exception handlers registered for
// the nearest kind in the lineage
//
//	KindAPI | KindTimeout | KindCanceled -> KindFailure -> KindAny
//	KindPanic -> KindAny
//
// All handlers registered for that kind run. When nothing is registered
// along the lineage the error is logged. A failing handler never stops the
// dispatcher or its caller.
//
// Message and event handlers run under a timeout (60 seconds by default).
// A handler that ignores its context keeps running, but its result is
// discarded and a KindTimeout error is routed.
package handler
