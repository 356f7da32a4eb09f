package chart

import (
	"reflect"
	"sync"
)

// Context provides thread-safe storage for extended state.
//
// Values may be mutated in place by actions. NewContext, Snapshot and
// Restore copy nested maps and slices, so snapshots never share them with
// the live context.
type Context struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewContext creates a context seeded with a copy of data.
func NewContext(data map[string]any) *Context {
	return &Context{data: copyData(data)}
}

// Get retrieves a value by key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set stores a value by key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Delete removes a key from the context.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Snapshot returns a deep copy of all data for serialization.
// Modifications to the returned map do not affect the context.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyData(c.data)
}

// Restore atomically replaces all data with a deep copy of snap.
func (c *Context) Restore(snap map[string]any) {
	data := copyData(snap)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = deepCopy(v)
	}
	return out
}

// deepCopy copies maps and slices at any depth; other values are shared.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	return copyValue(reflect.ValueOf(v)).Interface()
}

func copyValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyValue(v.Elem()))
		return out
	default:
		return v
	}
}
