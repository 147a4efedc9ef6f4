package repository

// identityCache keeps at most one in-memory instance per persisted row so
// that repeated loads within a request observe the same object. Callers are
// expected to discard the cache at request boundaries via Reset.
type identityCache[K comparable, V any] struct {
	items map[K]V
}

func newIdentityCache[K comparable, V any]() *identityCache[K, V] {
	return &identityCache[K, V]{items: make(map[K]V)}
}

func (c *identityCache[K, V]) Get(key K) (V, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *identityCache[K, V]) Put(key K, value V) {
	c.items[key] = value
}

func (c *identityCache[K, V]) Remove(key K) {
	delete(c.items, key)
}

// Rekey moves a cached instance to a new key, as happens when an entity is
// renamed.
func (c *identityCache[K, V]) Rekey(oldKey, newKey K) {
	if v, ok := c.items[oldKey]; ok {
		delete(c.items, oldKey)
		c.items[newKey] = v
	}
}

func (c *identityCache[K, V]) Reset() {
	c.items = make(map[K]V)
}
