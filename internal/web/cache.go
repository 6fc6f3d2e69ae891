package web

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"zoocal/internal/recur"
)

const (
	expansionCacheSize = 256
	expansionCacheTTL  = 30 * time.Second
)

// versionedSource is implemented by sources that can tell when their
// snapshot last changed (dataset.Store). Only those are cached.
type versionedSource interface {
	LoadedAt() time.Time
}

// expansionCache keeps recent window expansions keyed by window and
// snapshot version, so a reload never serves stale instances.
type expansionCache struct {
	lru *expirable.LRU[string, recur.ExpandResult]
}

func newExpansionCache() *expansionCache {
	return &expansionCache{
		lru: expirable.NewLRU[string, recur.ExpandResult](expansionCacheSize, nil, expansionCacheTTL),
	}
}

func expansionKey(version, from, to time.Time) string {
	return fmt.Sprintf("%d|%d|%d", version.UnixNano(), from.UnixNano(), to.UnixNano())
}

func (c *expansionCache) get(key string) (recur.ExpandResult, bool) {
	if c == nil {
		return recur.ExpandResult{}, false
	}
	return c.lru.Get(key)
}

func (c *expansionCache) add(key string, res recur.ExpandResult) {
	if c == nil {
		return
	}
	c.lru.Add(key, res)
}
