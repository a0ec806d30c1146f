package storage

import (
	"context"
	"fmt"

	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/containerd/errdefs"
)

// Storage is the persistent key-value slot capability a synchronized store writes through to.
type Storage interface {
	// Read returns the raw value for key. ok is false when the key was never written.
	Read(key string) (value string, ok bool, err error)
	Write(key, value string) error
}

// KeyValueStore is a Storage that can also list and remove keys.
// MemoryStorage and FileStorage implement this interface.
type KeyValueStore interface {
	Storage
	Remove(key string) error
	Keys() ([]string, error)
}

// Watcher publishes changes made to the storage by other processes.
type Watcher interface {
	StartWatcher(ctx context.Context, publisher notify.Publisher) error
}

var (
	ErrQuotaExceeded = fmt.Errorf("storage quota exceeded: %w", errdefs.ErrResourceExhausted)
	ErrReadOnly      = fmt.Errorf("storage is read-only: %w", errdefs.ErrPermissionDenied)
	ErrDisabled      = fmt.Errorf("storage is disabled: %w", errdefs.ErrUnavailable)
)

// Option configures a storage backend.
type Option func(*options)

type options struct {
	quota    int
	readOnly bool
	disabled bool
}

// WithQuota limits the total size in bytes of all keys and values. Zero means unlimited.
func WithQuota(bytes int) Option {
	return func(o *options) {
		o.quota = bytes
	}
}

// ReadOnly rejects every write with ErrReadOnly.
func ReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// Disabled rejects every read and write with ErrDisabled.
func Disabled() Option {
	return func(o *options) {
		o.disabled = true
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// checkWrite validates a write of value under key against items, which holds
// the current contents.
func (o options) checkWrite(items map[string]string, key, value string) error {
	if o.disabled {
		return ErrDisabled
	}
	if o.readOnly {
		return ErrReadOnly
	}
	if o.quota > 0 {
		size := usage(items) + entrySize(key, value)
		if old, exists := items[key]; exists {
			size -= entrySize(key, old)
		}
		if size > o.quota {
			return fmt.Errorf("write %q (%d bytes, limit %d): %w", key, size, o.quota, ErrQuotaExceeded)
		}
	}
	return nil
}

func entrySize(key, value string) int {
	return len(key) + len(value)
}

func usage(items map[string]string) int {
	total := 0
	for k, v := range items {
		total += entrySize(k, v)
	}
	return total
}
