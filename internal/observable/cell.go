// Package observable provides a minimal reactive value cell.
//
// A Cell holds a value, notifies subscribers when it changes and runs a start
// hook when it gains its first subscriber. The stop func returned by the hook
// runs when the last subscriber leaves, so resources acquired by the hook live
// exactly as long as the cell is observed.
package observable

import (
	"slices"
	"sync"
	"sync/atomic"
)

// StartFunc runs on the 0→1 subscriber transition. set writes the cell
// without notifying; the new subscriber receives the resulting value first.
// The returned stop func, if any, runs on the 1→0 transition.
type StartFunc[T any] func(set func(T)) (stop func())

// Option configures a Cell.
type Option[T any] func(*Cell[T])

// WithEqual suppresses notifications when equal reports the new value is the
// same as the current one. Without it every Set notifies.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(c *Cell[T]) {
		c.equal = equal
	}
}

type subscriber[T any] struct {
	fn     func(T)
	closed atomic.Bool
}

type delivery[T any] struct {
	value T
	subs  []*subscriber[T]
}

// Cell is a value with subscribers. It is safe for concurrent use and
// subscribers may call Set or unsubscribe from inside their callback.
type Cell[T any] struct {
	// lifecycle serializes start/stop transitions; it is never held while
	// subscriber callbacks run.
	lifecycle sync.Mutex

	mu       sync.Mutex
	value    T
	subs     []*subscriber[T]
	running  bool
	stop     func()
	queue    []delivery[T]
	draining bool

	start StartFunc[T]
	equal func(a, b T) bool
}

// New creates a cell holding initial. start may be nil.
func New[T any](initial T, start StartFunc[T], opts ...Option[T]) *Cell[T] {
	c := &Cell[T]{value: initial, start: start}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.Stage(v)
	c.Flush()
}

// Update sets the value to fn applied to the current value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.Get()))
}

// Stage replaces the value and queues a notification for the current
// subscribers without delivering it. Call Flush to deliver.
func (c *Cell[T]) Stage(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.equal != nil && c.equal(c.value, v) {
		return
	}
	c.value = v
	if !c.running || len(c.subs) == 0 {
		return
	}
	c.queue = append(c.queue, delivery[T]{value: v, subs: slices.Clone(c.subs)})
}

// Flush delivers queued notifications in the order they were staged.
// If another call is already draining the queue, Flush returns immediately
// and that call delivers the pending notifications.
func (c *Cell[T]) Flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	finished := false
	defer func() {
		// a panicking subscriber must not leave the queue wedged
		if !finished {
			c.mu.Lock()
			c.draining = false
			c.mu.Unlock()
		}
	}()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			finished = true
			return
		}
		d := c.queue[0]
		c.queue[0] = delivery[T]{}
		c.queue = c.queue[1:]
		c.mu.Unlock()

		for _, s := range d.subs {
			if s.closed.Load() {
				continue
			}
			s.fn(d.value)
		}
	}
}

// Subscribe registers fn and calls it with the current value. The first
// subscriber triggers the start hook. The returned func removes fn; calling it
// more than once is a no-op.
func (c *Cell[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s := &subscriber[T]{fn: fn}
	c.subscribe(s)
	c.Flush()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(s) })
	}
}

func (c *Cell[T]) subscribe(s *subscriber[T]) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	c.subs = append(c.subs, s)
	needsStart := !c.running
	c.mu.Unlock()

	if needsStart {
		var stop func()
		if c.start != nil {
			stop = c.start(c.Set)
		}
		c.mu.Lock()
		c.running = true
		c.stop = stop
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.queue = append(c.queue, delivery[T]{value: c.value, subs: []*subscriber[T]{s}})
	c.mu.Unlock()
}

func (c *Cell[T]) unsubscribe(s *subscriber[T]) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	s.closed.Store(true)
	c.subs = slices.DeleteFunc(c.subs, func(other *subscriber[T]) bool { return other == s })

	var stop func()
	if len(c.subs) == 0 && c.running {
		c.running = false
		stop = c.stop
		c.stop = nil
	}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Subscribers returns the number of active subscribers.
func (c *Cell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Running reports whether the start hook has run and the stop func has not.
func (c *Cell[T]) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
