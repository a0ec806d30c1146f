// Package syncstore keeps an observable in-memory value synchronized with a
// key in persistent storage.
//
// A Store writes every Set through to storage, hydrates from storage when it
// gains its first subscriber, and re-hydrates whenever the notification
// channel reports that another process changed its key. Failures never reach
// the caller: they are handed to a Reporter and the store keeps working from
// memory, falling back to its initial value when storage holds nothing usable.
//
//	hub := notify.NewHub()
//	count := syncstore.New("count", 0, true, syncstore.Backend{Storage: fs, Channel: hub})
//	unsubscribe := count.Subscribe(func(v int) { fmt.Println(v) })
//	count.Update(func(v int) int { return v + 1 })
//	unsubscribe()
package syncstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/bassista/go_syncstore/internal/observable"
	"github.com/bassista/go_syncstore/internal/storage"
)

// Backend groups the shared capabilities a Store uses. Storage and Channel are
// accessed, not owned. A nil Reporter logs failures; a nil Observer is ignored.
type Backend struct {
	Storage  storage.Storage
	Channel  notify.Channel
	Reporter Reporter
	Observer Observer
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithCodec replaces the default JSON codec.
func WithCodec[T any](codec Codec[T]) Option[T] {
	return func(s *Store[T]) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithEqual skips subscriber notifications when the new value equals the current one.
// Storage writes still happen.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Store[T]) {
		s.cellOpts = append(s.cellOpts, observable.WithEqual(equal))
	}
}

// Store is a value synchronized with one storage key. It is safe for concurrent use.
type Store[T any] struct {
	key     string
	initial T
	persist bool

	codec    Codec[T]
	storage  storage.Storage
	channel  notify.Channel
	reporter Reporter
	observer Observer
	cellOpts []observable.Option[T]

	// mu serializes value assignment and persistence so storage sees writes
	// in the same order as the in-memory value.
	mu      sync.Mutex
	current T
	cell    *observable.Cell[T]

	active atomic.Bool
}

// New creates a store for key. When hasStorage is false the store never touches
// backend.Storage or backend.Channel and behaves as a plain observable value.
// Storage is not accessed until the first subscriber arrives.
func New[T any](key string, initial T, hasStorage bool, backend Backend, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		key:      key,
		initial:  initial,
		current:  initial,
		codec:    JSONCodec[T]{},
		storage:  backend.Storage,
		channel:  backend.Channel,
		reporter: backend.Reporter,
		observer: backend.Observer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = NewLogReporter()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}

	s.persist = hasStorage
	switch {
	case !hasStorage:
	case key == "":
		logger.WithComponent("syncstore").Warn("empty key, running memory-only")
		s.persist = false
	case backend.Storage == nil:
		logger.WithKey("syncstore", key).Warn("no storage configured, running memory-only")
		s.persist = false
	}

	s.cell = observable.New(initial, s.start, s.cellOpts...)
	return s
}

// Key returns the storage key.
func (s *Store[T]) Key() string {
	return s.key
}

// Initial returns the fallback value.
func (s *Store[T]) Initial() T {
	return s.initial
}

// Active reports whether the store currently listens to the notification channel.
func (s *Store[T]) Active() bool {
	return s.active.Load()
}

// Subscribers returns the number of active subscriptions.
func (s *Store[T]) Subscribers() int {
	return s.cell.Subscribers()
}

// Get returns the current in-memory value.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe calls fn with the current value and on every change. The first
// subscriber activates the store; the last unsubscribe deactivates it.
func (s *Store[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	return s.cell.Subscribe(fn)
}

// Set replaces the value and writes it through to storage. The in-memory
// value is updated first and is kept even when encoding or writing fails.
func (s *Store[T]) Set(value T) {
	failure := func() *Failure {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.setLocked(value)
	}()
	s.cell.Flush()
	s.report(failure)
}

// Update sets the value to fn applied to the current in-memory value.
// fn runs with the store locked and must not call back into the store.
func (s *Store[T]) Update(fn func(T) T) {
	failure := func() *Failure {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.setLocked(fn(s.current))
	}()
	s.cell.Flush()
	s.report(failure)
}

// start runs when the first subscriber arrives.
func (s *Store[T]) start(func(T)) (stop func()) {
	if !s.persist {
		return nil
	}

	// listen before reading so a change landing in between is not lost
	var unsubscribe func()
	if s.channel != nil {
		unsubscribe = s.channel.OnChange(s.key, s.handleEvent)
		s.active.Store(true)
		s.observer.ActiveChanged(s.key, true)
	}

	raw, present := s.readStorage()
	s.hydrate(raw, present, SourceActivation)
	logger.WithKey("syncstore", s.key).Debug("store activated")

	return func() {
		if unsubscribe != nil {
			s.active.Store(false)
			unsubscribe()
			s.observer.ActiveChanged(s.key, false)
		}
		logger.WithKey("syncstore", s.key).Debug("store deactivated")
	}
}

// handleEvent applies a change made elsewhere to the same key.
func (s *Store[T]) handleEvent(ev notify.Event) {
	if ev.Key != s.key {
		return
	}
	// the channel may deliver to a handler it snapshotted before deactivation
	if !s.active.Load() {
		return
	}
	logger.WithKey("syncstore", s.key).Debugf("external change (present=%v)", ev.Present)
	s.hydrate(ev.Value, ev.Present, SourceNotification)
}

// readStorage returns the raw stored value. A failed read is reported and
// treated as absent.
func (s *Store[T]) readStorage() (string, bool) {
	raw, ok, err := s.safeRead()
	if err != nil {
		s.report(&Failure{Kind: KindStorageRead, Key: s.key, Value: s.initial, Err: err})
		return "", false
	}
	return raw, ok
}

// hydrate adopts a raw stored value. An absent value resets the store to its
// initial value and writes it through; an undecodable one resets it without
// touching storage.
func (s *Store[T]) hydrate(raw string, present bool, source Source) {
	failures := func() []*Failure {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.observer.Hydrated(s.key, source)
		if !present {
			return []*Failure{s.setLocked(s.initial)}
		}

		value, err := s.decode(raw)
		if err != nil {
			s.assignLocked(s.initial)
			return []*Failure{{
				Kind:   KindDecode,
				Key:    s.key,
				Value:  s.initial,
				Raw:    raw,
				HasRaw: true,
				Codec:  s.codec.Name(),
				Err:    err,
			}}
		}
		s.assignLocked(value)
		return nil
	}()
	s.cell.Flush()
	for _, f := range failures {
		s.report(f)
	}
}

// setLocked assigns value and, when storage is enabled, writes it through.
func (s *Store[T]) setLocked(value T) *Failure {
	s.assignLocked(value)
	if !s.persist {
		return nil
	}

	raw, err := s.encode(value)
	if err != nil {
		return &Failure{Kind: KindEncode, Key: s.key, Value: value, Codec: s.codec.Name(), Err: err}
	}

	err = s.safeWrite(raw)
	s.observer.Persisted(s.key, err)
	if err != nil {
		return &Failure{Kind: KindStorageWrite, Key: s.key, Value: value, Raw: raw, HasRaw: true, Codec: s.codec.Name(), Err: err}
	}
	return nil
}

func (s *Store[T]) assignLocked(value T) {
	s.current = value
	s.cell.Stage(value)
}

func (s *Store[T]) encode(value T) (raw string, err error) {
	defer recoverInto(&err, "serialize")
	return s.codec.Serialize(value)
}

func (s *Store[T]) decode(raw string) (value T, err error) {
	defer recoverInto(&err, "deserialize")
	return s.codec.Deserialize(raw)
}

func (s *Store[T]) safeRead() (raw string, ok bool, err error) {
	defer recoverInto(&err, "storage read")
	return s.storage.Read(s.key)
}

func (s *Store[T]) safeWrite(raw string) (err error) {
	defer recoverInto(&err, "storage write")
	return s.storage.Write(s.key, raw)
}

func (s *Store[T]) report(f *Failure) {
	if f == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.WithKey("syncstore", s.key).Errorf("failure reporter panicked: %v (while reporting: %v)", r, f)
		}
	}()
	s.reporter.Report(f)
}

// recoverInto turns a panic in the deferring function into an error.
func recoverInto(err *error, op string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v", op, r)
	}
}
