package api

import "sync"

// Context is the mutable key/value state carried between nodes within one
// run. It is owned exclusively by the run that created it; there is no
// cross-run sharing, so no cross-run locking is needed. The internal lock
// only guards the run's executor against concurrent snapshot readers
// (queries, event subscribers).
//
// Keys are untyped at the store level; type checking happens at the node
// mapping layer against the tool's declared schema.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
	frozen bool
}

// NewContext creates a context seeded with the given values. seed may be nil.
func NewContext(seed map[string]any) *Context {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Context{values: values}
}

// Get returns the value for key, or a *MissingKeyError if it is absent.
func (c *Context) Get(key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	if !ok {
		return nil, &MissingKeyError{Key: key}
	}
	return v, nil
}

// Lookup is Get without the error, for callers that treat absence as a
// normal case.
func (c *Context) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	return v, ok
}

// Set overwrites the value for key. It fails with ErrContextFrozen once the
// owning run has reached a terminal status.
func (c *Context) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrContextFrozen
	}
	c.values[key] = value
	return nil
}

// Merge applies all writes under a single lock acquisition, so concurrent
// readers of the same run observe either none or all of them.
func (c *Context) Merge(values map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrContextFrozen
	}
	for k, v := range values {
		c.values[k] = v
	}
	return nil
}

// Snapshot returns a shallow copy of the current values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Freeze makes the context read-only. Called by the engine when the run
// reaches a terminal status; there is no unfreeze.
func (c *Context) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether the context has been frozen.
func (c *Context) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}
