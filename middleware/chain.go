package middleware

import (
	"reflect"
	"slices"
	"sync"
)

// Key identifies a chain entry: the concrete type of its interceptor.
type Key = reflect.Type

// KeyOf returns the chain key of an interceptor value. A typed nil
// pointer works as a key, e.g. KeyOf((*Logging)(nil)).
func KeyOf(v any) Key {
	return reflect.TypeOf(v)
}

type entry[I any] struct {
	key     Key
	factory func() I
}

// Chain is an ordered list of interceptor factories with at most one
// entry per interceptor type. It is safe for concurrent use.
type Chain[I any] struct {
	mu      sync.RWMutex
	entries []entry[I]
}

func newEntry[I any](factory func() I) entry[I] {
	return entry[I]{key: KeyOf(factory()), factory: factory}
}

// Add appends factory's interceptor type, moving it to the end if an
// entry of that type already exists.
func (c *Chain[I]) Add(factory func() I) {
	e := newEntry(factory)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(e.key)
	c.entries = append(c.entries, e)
}

// Use adds a shared, stateless interceptor instance.
func (c *Chain[I]) Use(i I) {
	c.Add(func() I { return i })
}

// Prepend inserts factory's interceptor type at the front, moving it if
// it already exists.
func (c *Chain[I]) Prepend(factory func() I) {
	e := newEntry(factory)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(e.key)
	c.entries = slices.Insert(c.entries, 0, e)
}

// Remove drops the entry whose type matches proto.
func (c *Chain[I]) Remove(proto I) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(KeyOf(proto))
}

// InsertBefore places factory's interceptor type immediately before the
// entry matching existing. If existing is absent it goes to the front.
func (c *Chain[I]) InsertBefore(existing I, factory func() I) {
	e := newEntry(factory)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(e.key)
	i := c.index(KeyOf(existing))
	if i < 0 {
		i = 0
	}
	c.entries = slices.Insert(c.entries, i, e)
}

// InsertAfter places factory's interceptor type immediately after the
// entry matching existing. If existing is absent it goes to the end.
func (c *Chain[I]) InsertAfter(existing I, factory func() I) {
	e := newEntry(factory)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(e.key)
	i := c.index(KeyOf(existing))
	if i < 0 {
		i = len(c.entries) - 1
	}
	c.entries = slices.Insert(c.entries, i+1, e)
}

// Exists reports whether an entry matching proto is present.
func (c *Chain[I]) Exists(proto I) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index(KeyOf(proto)) >= 0
}

// Len returns the number of entries.
func (c *Chain[I]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the entry types in chain order.
func (c *Chain[I]) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.key
	}
	return keys
}

// Clear removes all entries.
func (c *Chain[I]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Retrieve builds fresh interceptors in chain order.
func (c *Chain[I]) Retrieve() []I {
	c.mu.RLock()
	entries := slices.Clone(c.entries)
	c.mu.RUnlock()

	out := make([]I, len(entries))
	for i, e := range entries {
		out[i] = e.factory()
	}
	return out
}

func (c *Chain[I]) index(key Key) int {
	return slices.IndexFunc(c.entries, func(e entry[I]) bool { return e.key == key })
}

func (c *Chain[I]) remove(key Key) {
	c.entries = slices.DeleteFunc(c.entries, func(e entry[I]) bool { return e.key == key })
}
