package locator

// Cache is the per-caller (one per connection or per protocol driver
// instance — Go has no thread-local storage, so the caller owns and
// retains one) versioned snapshot of a Registry, per spec.md §4.3's
// "Read path optimization": the common case is a plain map read with no
// lock; refresh only happens when the registry's version has moved.
type Cache[K comparable] struct {
	reg     *Registry[K]
	version uint64
	snap    map[K]*MethodDescriptor[K]
}

func (r *Registry[K]) NewCache() *Cache[K] { return &Cache[K]{reg: r} }

// TryGetMethodDesc is the hot path: lock-free unless the cache is
// stale, in which case it refreshes once (taking the registry's shared
// lock) and retries.
func (c *Cache[K]) TryGetMethodDesc(key K) (*MethodDescriptor[K], bool) {
	if c.version != c.reg.version_() {
		c.refresh()
	}
	d, ok := c.snap[key]
	return d, ok
}

func (c *Cache[K]) refresh() {
	c.snap, c.version = c.reg.snapshot()
}
