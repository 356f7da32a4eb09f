package store

import "sync"

type valuer[T any] interface {
	current() T
}

// Get returns the current value of r by subscribing and immediately
// unsubscribing. For stores with a start notifier this briefly starts it.
func Get[T any](r Readable[T]) T {
	if v, ok := r.(valuer[T]); ok {
		unsubscribe := r.Subscribe(func(T) {})
		value := v.current()
		unsubscribe()
		return value
	}

	var (
		mu    sync.Mutex
		value T
	)
	unsubscribe := r.Subscribe(func(v T) {
		mu.Lock()
		value = v
		mu.Unlock()
	})
	unsubscribe()
	mu.Lock()
	defer mu.Unlock()
	return value
}

// Derived returns a store holding fn applied to every value of src. It
// subscribes to src only while it has subscribers itself.
func Derived[S, T any](src Readable[S], fn func(S) T, opts ...Option[T]) Readable[T] {
	var zero T
	return NewReadable(zero, func(set func(T)) func() {
		return src.Subscribe(func(v S) { set(fn(v)) })
	}, opts...)
}
