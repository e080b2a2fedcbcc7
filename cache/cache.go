// Package cache provides a time-bounded response cache keyed by structured
// request fingerprints. It shields the backend from redundant reads of
// slow-changing collections; writers invalidate the affected keys before
// returning, so a read issued after a write never observes the pre-write
// value.
package cache

import (
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTL classes. Policy is per-key: short-lived per-user lists versus broader
// reference data.
const (
	TTLUserScoped = 30 * time.Second
	TTLReference  = 5 * time.Minute
)

// Key is a structured cache key: a namespace (one per backend collection)
// plus an identifier within it. Namespace invalidation is therefore a
// well-defined operation rather than a string-matching convention.
type Key struct {
	Namespace string
	ID        string
}

func (k Key) String() string {
	return k.Namespace + "/" + k.ID
}

// Cache is an in-memory store of previously fetched response bodies with a
// per-entry time to live.
type Cache struct {
	entries *ttlcache.Cache[string, []byte]
}

// New creates a response cache. Expired entries are never returned; the
// background reaper started here keeps them from accumulating.
func New() *Cache {
	entries := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	go entries.Start()

	return &Cache{entries: entries}
}

// Get returns the cached body for key if present and fresh.
func (c *Cache) Get(key Key) ([]byte, bool) {
	item := c.entries.Get(key.String())
	if item == nil {
		return nil, false
	}

	return item.Value(), true
}

// Put stores a response body against key for ttl.
func (c *Cache) Put(key Key, value []byte, ttl time.Duration) {
	c.entries.Set(key.String(), value, ttl)
}

// Invalidate removes the entry for key, if any.
func (c *Cache) Invalidate(key Key) {
	c.entries.Delete(key.String())
}

// InvalidateNamespace removes every entry whose key is in namespace.
func (c *Cache) InvalidateNamespace(namespace string) {
	prefix := namespace + "/"
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Delete(k)
		}
	}
}

// Close stops the background reaper.
func (c *Cache) Close() {
	c.entries.Stop()
}
