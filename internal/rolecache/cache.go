// ABOUTME: Guild-keyed role permission cache with a short TTL and single refetch
// ABOUTME: Failed fetches clear the stale entry instead of serving it

package rolecache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-bot/internal/ttlcache"
)

// DefaultTTL is how long a fetched role table is trusted.
const DefaultTTL = 10 * time.Second

// FetchTimeout bounds a single role list fetch.
const FetchTimeout = 10 * time.Second

// Roles maps a role id to its permission bits.
type Roles map[int]int

// FetchFunc loads the role table for a guild.
type FetchFunc func(ctx context.Context, guildID string) (Roles, error)

// entry is stored for both outcomes so a failure also opens a TTL window.
type entry struct {
	roles Roles
	ok    bool
}

// Cache holds role tables per guild.
type Cache struct {
	entries *ttlcache.Cache[string, entry]
	fetch   FetchFunc
	group   singleflight.Group
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	logger *slog.Logger
	cache  []ttlcache.Option
}

// WithLogger sets the logger used to report fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.cache = append(c.cache, ttlcache.WithClock(now)) }
}

// New creates a cache that loads role tables with fetch. A ttl of zero or
// less uses DefaultTTL.
func New(fetch FetchFunc, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		entries: ttlcache.New[string, entry](ttl, 0, cfg.cache...),
		fetch:   fetch,
		logger:  cfg.logger.With("component", "rolecache"),
	}
}

// Get returns the role table for guildID. The second result is false when
// the most recent fetch inside the TTL window failed.
func (c *Cache) Get(ctx context.Context, guildID string) (Roles, bool) {
	if e, ok := c.entries.Get(guildID); ok {
		return e.roles, e.ok
	}

	// The fetch is shared by every waiter, so it runs detached from the
	// first caller's cancellation and is bounded by FetchTimeout instead.
	ch := c.group.DoChan(guildID, func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		if e, ok := c.entries.Get(guildID); ok {
			return e, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()

		roles, err := c.fetch(fetchCtx, guildID)
		if err != nil {
			c.logger.Warn("role list fetch failed", "guild_id", guildID, "error", err)
			e := entry{}
			c.entries.Set(guildID, e)
			return e, nil
		}

		e := entry{roles: roles, ok: true}
		c.entries.Set(guildID, e)
		return e, nil
	})

	select {
	case res := <-ch:
		e, _ := res.Val.(entry)
		return e.roles, e.ok
	case <-ctx.Done():
		return nil, false
	}
}

// Permissions ORs the permission bits of every listed role in guildID.
// Roles the guild does not define contribute nothing.
func (c *Cache) Permissions(ctx context.Context, guildID string, roleIDs []int) int {
	roles, ok := c.Get(ctx, guildID)
	if !ok {
		return 0
	}
	var perms int
	for _, id := range roleIDs {
		perms |= roles[id]
	}
	return perms
}

// Invalidate drops the entry for guildID so the next lookup refetches.
func (c *Cache) Invalidate(guildID string) {
	c.entries.Delete(guildID)
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.entries.Close()
}
