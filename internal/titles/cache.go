package titles

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// appliedCacheSize bounds the in-process applied-title cache
const appliedCacheSize = 5000

// AppliedCache remembers thread keys whose title is final (applied or
// disabled) so repeat requests skip the store read. LRU-evicted at a fixed
// cap; eviction only costs an extra store lookup.
type AppliedCache struct {
	cache *lru.Cache[string, string]
}

// NewAppliedCache creates a bounded applied-title cache
func NewAppliedCache() (*AppliedCache, error) {
	c, err := lru.New[string, string](appliedCacheSize)
	if err != nil {
		return nil, err
	}
	return &AppliedCache{cache: c}, nil
}

// Get returns the cached applied title for a thread key
func (a *AppliedCache) Get(threadKey string) (string, bool) {
	return a.cache.Get(threadKey)
}

// Put records a thread key as applied with its final title
func (a *AppliedCache) Put(threadKey, title string) {
	a.cache.Add(threadKey, title)
}

// Remove forgets a thread key (used by external resets)
func (a *AppliedCache) Remove(threadKey string) {
	a.cache.Remove(threadKey)
}

// Len returns the number of cached entries
func (a *AppliedCache) Len() int {
	return a.cache.Len()
}
