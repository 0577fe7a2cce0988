package fieldline

import "sort"

// ValueContainer is the mutable-mapping accessor over an object's raw custom
// field data, keyed by FieldDefinition key (never by slug, so renaming a slug
// cannot orphan stored values). Mutations through the accessor carry no
// validation side effects; a full validation pass is a separate explicit step.
type ValueContainer struct {
	data map[string]any
}

// NewValueContainer wraps an existing raw mapping. A nil mapping yields an
// empty container backed by a fresh map.
func NewValueContainer(data map[string]any) *ValueContainer {
	if data == nil {
		data = make(map[string]any)
	}
	return &ValueContainer{data: data}
}

// Get returns the staged value for key, or nil when absent.
func (c *ValueContainer) Get(key string) any {
	return c.data[key]
}

// Lookup returns the staged value and whether the key is present. A stored
// null is present with a nil value, distinct from an absent key.
func (c *ValueContainer) Lookup(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Set stages a value for key.
func (c *ValueContainer) Set(key string, value any) {
	c.data[key] = value
}

// Pop removes key and returns its previous value, or nil when absent.
func (c *ValueContainer) Pop(key string) any {
	v := c.data[key]
	delete(c.data, key)
	return v
}

// Keys returns the present keys in sorted order.
func (c *ValueContainer) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of staged keys.
func (c *ValueContainer) Len() int {
	return len(c.data)
}

// Raw exposes the underlying mapping. Callers share the backing map with the
// host object.
func (c *ValueContainer) Raw() map[string]any {
	return c.data
}

// Clone returns a shallow copy of the container's mapping.
func (c *ValueContainer) Clone() map[string]any {
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}
