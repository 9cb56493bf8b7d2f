package resolve

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cached keeps recently fetched documents in an LRU and collapses
// concurrent fetches of the same path into one call to the next resolver.
// Failed fetches are not cached.
type Cached struct {
	next  Resolver
	cache *lru.Cache[string, string]
	group singleflight.Group
}

// NewCached wraps next with an LRU holding up to size documents
func NewCached(next Resolver, size int) (*Cached, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Resolve(ctx context.Context, path string) (string, error) {
	if doc, ok := c.cache.Get(path); ok {
		return doc, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		if doc, ok := c.cache.Get(path); ok {
			return doc, nil
		}
		doc, err := c.next.Resolve(ctx, path)
		if err != nil {
			return "", err
		}
		c.cache.Add(path, doc)
		return doc, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of cached documents
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Purge drops every cached document
func (c *Cached) Purge() {
	c.cache.Purge()
}
