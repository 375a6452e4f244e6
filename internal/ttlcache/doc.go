// Package ttlcache provides a thread-safe, TTL-based, size-limited cache.
//
// Entries expire ttl after they were last written. When the cache is full
// the oldest written entry is evicted. A background goroutine sweeps
// expired entries until Close is called.
//
// Bot instances use it to drop redelivered message ids, and the role and
// room caches of the adapters are built on top of it.
package ttlcache
