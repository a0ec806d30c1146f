// Package cache keeps the synchronized stores a process has opened, one per key.
package cache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/bassista/go_syncstore/internal/storage"
	"github.com/bassista/go_syncstore/internal/syncstore"
	"github.com/containerd/errdefs"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidKey = fmt.Errorf("invalid store key: %w", errdefs.ErrInvalidArgument)
	ErrNotFound   = fmt.Errorf("store not found: %w", errdefs.ErrNotFound)
	ErrNoRemove   = fmt.Errorf("storage cannot remove keys: %w", errdefs.ErrNotImplemented)
)

const keyRules = "required,max=256,printascii"

// entry is one store known to the registry. release is nil once the registry
// dropped its own subscription; such a detached store stays in the map only
// while someone else still subscribes to it, so a later Open reuses it.
type entry struct {
	store   *syncstore.Store[any]
	release func()
}

func (e *entry) held() bool {
	return e.release != nil
}

// Registry opens stores on demand and keeps each one subscribed, so it stays
// hydrated and follows changes made by other processes until it is closed.
//
// Stores opened by the registry never see removal events: a key removed by
// another process closes the registry's subscription instead of resetting the
// store, so the removal is not written back.
type Registry struct {
	mu         sync.Mutex
	backend    syncstore.Backend
	hasStorage bool
	validate   *validator.Validate
	entries    map[string]*entry
}

// NewRegistry creates an empty registry. Every store it opens shares backend.
func NewRegistry(backend syncstore.Backend, hasStorage bool) *Registry {
	r := &Registry{
		hasStorage: hasStorage,
		validate:   validator.New(),
		entries:    make(map[string]*entry),
	}
	if backend.Channel != nil {
		backend.Channel = removalChannel{next: backend.Channel, removed: r.Close}
	}
	r.backend = backend
	return r
}

// removalChannel forwards change events to stores and turns removal events
// into a call to removed.
type removalChannel struct {
	next    notify.Channel
	removed func(key string)
}

func (c removalChannel) OnChange(key string, h notify.Handler) func() {
	return c.next.OnChange(key, func(ev notify.Event) {
		if !ev.Present {
			logger.WithKey("registry", ev.Key).Debug("key removed elsewhere")
			c.removed(ev.Key)
			return
		}
		h(ev)
	})
}

// ValidateKey checks that key can name a store.
func (r *Registry) ValidateKey(key string) error {
	if err := r.validate.Var(key, keyRules); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Open returns the store for key, creating it with initial as its fallback
// value when it is not open yet. initial is ignored for an open store.
func (r *Registry) Open(key string, initial any) (*syncstore.Store[any], error) {
	if err := r.ValidateKey(key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if ok && e.held() {
		return e.store, nil
	}
	if !ok {
		e = &entry{store: syncstore.New[any](key, initial, r.hasStorage, r.backend)}
		r.entries[key] = e
		logger.WithKey("registry", key).Debug("store opened")
	} else {
		logger.WithKey("registry", key).Debug("detached store reopened")
	}
	e.release = e.store.Subscribe(func(any) {})
	return e.store, nil
}

// Lookup returns the open store for key.
func (r *Registry) Lookup(key string) (*syncstore.Store[any], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || !e.held() {
		return nil, false
	}
	return e.store, true
}

// Get returns the value of key. A key that is neither open nor stored yields ErrNotFound.
func (r *Registry) Get(key string) (any, error) {
	if err := r.ValidateKey(key); err != nil {
		return nil, err
	}
	if s, ok := r.Lookup(key); ok {
		return s.Get(), nil
	}

	if !r.hasStorage || r.backend.Storage == nil {
		return nil, ErrNotFound
	}
	_, present, err := r.backend.Storage.Read(key)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	if !present {
		return nil, ErrNotFound
	}

	s, err := r.Open(key, nil)
	if err != nil {
		return nil, err
	}
	return s.Get(), nil
}

// Set writes value to key, opening the store with value as its fallback if needed.
func (r *Registry) Set(key string, value any) error {
	s, err := r.Open(key, value)
	if err != nil {
		return err
	}
	s.Set(value)
	return nil
}

// Update applies fn to the current value of key.
func (r *Registry) Update(key string, fn func(any) any) error {
	s, err := r.Open(key, nil)
	if err != nil {
		return err
	}
	s.Update(fn)
	return nil
}

// Subscribe calls fn with the value of key and on every change.
func (r *Registry) Subscribe(key string, fn func(any)) (func(), error) {
	s, err := r.Open(key, nil)
	if err != nil {
		return nil, err
	}
	unsubscribe := s.Subscribe(fn)
	return func() {
		unsubscribe()
		r.dropDetached(key, s)
	}, nil
}

// dropDetached forgets a detached store once nobody subscribes to it.
func (r *Registry) dropDetached(key string, s *syncstore.Store[any]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok && e.store == s && !e.held() && s.Subscribers() == 0 {
		delete(r.entries, key)
		logger.WithKey("registry", key).Debug("detached store dropped")
	}
}

// Keys lists the open keys together with every key held by the storage.
func (r *Registry) Keys() ([]string, error) {
	seen := make(map[string]struct{})

	r.mu.Lock()
	for k, e := range r.entries {
		if e.held() {
			seen[k] = struct{}{}
		}
	}
	r.mu.Unlock()

	if kv, ok := r.backend.Storage.(storage.KeyValueStore); ok && r.hasStorage {
		stored, err := kv.Keys()
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		for _, k := range stored {
			seen[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Remove closes the store for key and deletes the key from storage.
func (r *Registry) Remove(key string) error {
	if err := r.ValidateKey(key); err != nil {
		return err
	}
	r.Close(key)

	if !r.hasStorage {
		return nil
	}
	kv, ok := r.backend.Storage.(storage.KeyValueStore)
	if !ok {
		return ErrNoRemove
	}
	if err := kv.Remove(key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Close drops the registry's subscription to key. A store that still has
// other subscribers stays active and is reused by the next Open.
func (r *Registry) Close(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok || !e.held() {
		return
	}
	e.release()
	e.release = nil
	if e.store.Subscribers() == 0 {
		delete(r.entries, key)
		logger.WithKey("registry", key).Debug("store closed")
		return
	}
	logger.WithKey("registry", key).Debugf("store detached, %d subscribers left", e.store.Subscribers())
}

// CloseAll closes every open store.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.held() {
			e.release()
		}
	}
	logger.WithComponent("registry").Debugf("closed %d stores", len(r.entries))
	r.entries = make(map[string]*entry)
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.held() {
			n++
		}
	}
	return n
}
