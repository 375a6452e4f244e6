// Package rolecache caches guild role permission tables.
//
// Platforms that compute an "is admin" flag from role permissions would
// otherwise fetch the guild's role list on every inbound message. The
// cache keeps one entry per guild for a short TTL (10 seconds by default).
//
// # Refetch Rules
//
//   - A lookup inside the TTL window never calls the fetcher, even if the
//     last fetch failed.
//   - A miss or an expired entry triggers exactly one fetch per guild;
//     concurrent lookups for the same guild share it (singleflight).
//   - A failed fetch clears the stale entry rather than serving it, and
//     still starts a new TTL window so a failing endpoint is not hammered.
//
// The cache is an injected handle. Adapters receive one at construction
// and there is no package-level state.
package rolecache
