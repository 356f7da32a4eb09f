package store

import (
	"sort"
	"sync"
)

// Subscriber receives store values.
type Subscriber[T any] func(value T)

// Unsubscriber detaches a subscriber. Calling it more than once is a no-op.
type Unsubscriber func()

// StartStopNotifier is called with the store's setter when the first
// subscriber arrives. The returned function, if non-nil, is called when the
// last subscriber leaves.
type StartStopNotifier[T any] func(set func(T)) (stop func())

// Readable is a store that can be observed.
type Readable[T any] interface {
	// Subscribe delivers the current value to fn, then every update until
	// the returned Unsubscriber is called.
	Subscribe(fn Subscriber[T]) Unsubscriber
}

// Writable is a store whose value can be replaced by its holder.
type Writable[T any] interface {
	Readable[T]
	Set(value T)
	Update(fn func(T) T)
}

// Option configures a store.
type Option[T any] func(*Store[T])

// WithEqual makes Set skip notification when the new value is equal to the
// current one. Without it every Set notifies.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Store[T]) {
		s.equal = equal
	}
}

type subscription[T any] struct {
	id     uint64
	fn     Subscriber[T]
	active bool
}

type delivery[T any] struct {
	sub   *subscription[T]
	value T
}

// Store is the Writable implementation behind NewReadable and NewWritable.
//
// Deliveries are serialized: a value set while subscribers are being
// notified, from a subscriber or another goroutine, is queued and delivered
// after the current round, so every subscriber sees values in the order
// they were set.
type Store[T any] struct {
	// life serializes notifier start and stop.
	life sync.Mutex

	mu       sync.Mutex
	value    T
	equal    func(a, b T) bool
	start    StartStopNotifier[T]
	stop     func()
	subs     map[uint64]*subscription[T]
	nextID   uint64
	pending  []delivery[T]
	draining bool
}

// NewWritable creates a store holding initial. start may be nil.
func NewWritable[T any](initial T, start StartStopNotifier[T], opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		value: initial,
		start: start,
		subs:  make(map[uint64]*subscription[T]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewReadable creates a store whose value can only be changed by start.
func NewReadable[T any](initial T, start StartStopNotifier[T], opts ...Option[T]) Readable[T] {
	return NewWritable(initial, start, opts...)
}

// Subscribe implements Readable.
//
// The first subscriber runs the start notifier before it is registered, so
// values set during start update the store without notifying anyone. The
// subscriber then receives the current value: synchronously, unless another
// goroutine is delivering, in which case it is delivered in that round
// before any later update.
func (s *Store[T]) Subscribe(fn Subscriber[T]) Unsubscriber {
	s.life.Lock()
	s.mu.Lock()
	first := len(s.subs) == 0
	s.mu.Unlock()
	if first && s.start != nil {
		stop := s.start(s.Set)
		s.mu.Lock()
		s.stop = stop
		s.mu.Unlock()
	}

	s.mu.Lock()
	sub := &subscription[T]{id: s.nextID, fn: fn, active: true}
	s.nextID++
	s.subs[sub.id] = sub
	s.pending = append(s.pending, delivery[T]{sub: sub, value: s.value})
	s.mu.Unlock()
	s.life.Unlock()

	s.drain()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(sub) })
	}
}

func (s *Store[T]) unsubscribe(sub *subscription[T]) {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	sub.active = false
	delete(s.subs, sub.id)
	var stop func()
	if len(s.subs) == 0 {
		stop, s.stop = s.stop, nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Set replaces the value and notifies subscribers.
func (s *Store[T]) Set(value T) {
	s.mu.Lock()
	if !s.setLocked(value) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.drain()
}

// Update sets the value to fn applied to the current value. fn runs under
// the store's lock and must not use the store.
func (s *Store[T]) Update(fn func(T) T) {
	s.mu.Lock()
	if !s.setLocked(fn(s.value)) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.drain()
}

func (s *Store[T]) setLocked(value T) bool {
	if s.equal != nil && s.equal(s.value, value) {
		return false
	}
	s.value = value
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		s.pending = append(s.pending, delivery[T]{sub: s.subs[id], value: value})
	}
	return len(ids) > 0
}

// drain delivers queued values unless another call is already doing so.
func (s *Store[T]) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		d := s.pending[0]
		s.pending = s.pending[1:]
		if !d.sub.active {
			continue
		}
		s.mu.Unlock()
		d.sub.fn(d.value)
		s.mu.Lock()
	}
	s.pending = nil
	s.draining = false
	s.mu.Unlock()
}

// current returns the stored value without subscribing.
func (s *Store[T]) current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// SubscriberCount returns the number of attached subscribers.
func (s *Store[T]) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
