package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/observability"
)

const (
	userKeyPrefix      = "user:"
	PendingUsersKey    = "users:pending"
	AllUsersKey        = "users:all"
	DefaultUserTTL     = 300 * time.Second
	DefaultListTTL     = 60 * time.Second
	storeCallTimeout   = 300 * time.Millisecond
	kindUser, kindList = "user", "list"
)

func UserKey(id string) string {
	return userKeyPrefix + id
}

// SessionCache maps profile ids (and a couple of admin list keys) to JSON projections.
// It never fails its caller: store errors are logged, counted and reported as misses.
type SessionCache struct {
	store   Store
	userTTL time.Duration
	listTTL time.Duration
	log     *slog.Logger
	prom    *observability.Prom
}

type SessionCacheOption func(*SessionCache)

func WithTTLs(user, list time.Duration) SessionCacheOption {
	return func(c *SessionCache) {
		if user > 0 {
			c.userTTL = user
		}
		if list > 0 {
			c.listTTL = list
		}
	}
}

func WithMetrics(p *observability.Prom) SessionCacheOption {
	return func(c *SessionCache) {
		c.prom = p
	}
}

func NewSessionCache(store Store, log *slog.Logger, opts ...SessionCacheOption) *SessionCache {
	if log == nil {
		log = slog.Default()
	}
	c := &SessionCache{
		store:   store,
		userTTL: DefaultUserTTL,
		listTTL: DefaultListTTL,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SessionCache) GetUser(ctx context.Context, id string) (profile.Projection, bool) {
	var p profile.Projection
	ok := c.get(ctx, kindUser, UserKey(id), &p)
	return p, ok
}

func (c *SessionCache) SetUser(ctx context.Context, p profile.Projection) {
	c.set(ctx, kindUser, UserKey(p.ID), p, c.userTTL)
}

func (c *SessionCache) GetList(ctx context.Context, key string) ([]profile.Projection, bool) {
	var items []profile.Projection
	ok := c.get(ctx, kindList, key, &items)
	return items, ok
}

func (c *SessionCache) SetList(ctx context.Context, key string, items []profile.Projection) {
	c.set(ctx, kindList, key, items, c.listTTL)
}

// InvalidateUser drops the per-user entry and every list that may contain the user.
func (c *SessionCache) InvalidateUser(ctx context.Context, id string) {
	c.del(ctx, UserKey(id), PendingUsersKey, AllUsersKey)
}

// ForgetUser drops only the per-user entry.
func (c *SessionCache) ForgetUser(ctx context.Context, id string) {
	c.del(ctx, UserKey(id))
}

// InvalidateLists drops the admin list entries only.
func (c *SessionCache) InvalidateLists(ctx context.Context) {
	c.del(ctx, PendingUsersKey, AllUsersKey)
}

func (c *SessionCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *SessionCache) get(ctx context.Context, kind, key string, out any) bool {
	cctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	b, err := c.store.Get(cctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.prom.CacheOp(kind, "get", "miss")
			return false
		}
		c.prom.CacheOp(kind, "get", "error")
		c.log.WarnContext(ctx, "session cache read failed", "key", key, "err", err)
		return false
	}

	if err := json.Unmarshal(b, out); err != nil {
		c.prom.CacheOp(kind, "get", "error")
		c.log.WarnContext(ctx, "session cache entry undecodable", "key", key, "err", err)
		c.del(ctx, key)
		return false
	}

	c.prom.CacheOp(kind, "get", "hit")
	return true
}

func (c *SessionCache) set(ctx context.Context, kind, key string, val any, ttl time.Duration) {
	b, err := json.Marshal(val)
	if err != nil {
		c.prom.CacheOp(kind, "set", "error")
		c.log.WarnContext(ctx, "session cache encode failed", "key", key, "err", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	if err := c.store.Set(cctx, key, b, ttl); err != nil {
		c.prom.CacheOp(kind, "set", "error")
		c.log.WarnContext(ctx, "session cache write failed", "key", key, "err", err)
		return
	}
	c.prom.CacheOp(kind, "set", "ok")
}

func (c *SessionCache) del(ctx context.Context, keys ...string) {
	cctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	if err := c.store.Delete(cctx, keys...); err != nil {
		c.prom.CacheOp("any", "delete", "error")
		c.log.WarnContext(ctx, "session cache invalidation failed", "keys", keys, "err", err)
		return
	}
	c.prom.CacheOp("any", "delete", "ok")
}
