// Package lifecycle models the lifetime of a host component.
//
// Code that acquires resources on behalf of a component registers a
// teardown hook with the component's Scope; the host destroys the
// component when it goes away and every hook runs exactly once.
package lifecycle

import (
	"context"
	"sync"
)

// Scope accepts teardown hooks.
type Scope interface {
	OnDestroy(fn func())
}

// Component is a Scope whose hooks run when it is destroyed.
type Component struct {
	mu        sync.Mutex
	hooks     []func()
	destroyed bool
	done      chan struct{}
}

// NewComponent creates a live component.
func NewComponent() *Component {
	return &Component{done: make(chan struct{})}
}

// OnDestroy registers fn to run when the component is destroyed. On an
// already destroyed component fn runs immediately.
func (c *Component) OnDestroy(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Destroy runs the registered hooks in reverse registration order. Only the
// first call has any effect.
func (c *Component) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	close(c.done)
}

// Destroyed is closed once every hook has run.
func (c *Component) Destroyed() <-chan struct{} {
	return c.done
}

// BindContext destroys the component when ctx is cancelled.
func (c *Component) BindContext(ctx context.Context) {
	stop := context.AfterFunc(ctx, c.Destroy)
	c.OnDestroy(func() { stop() })
}
