package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/containerd/errdefs"
	"github.com/fsnotify/fsnotify"
)

// FileStorage keeps every key in a single JSON object on disk.
//
// Reads are served from an in-memory copy of the file. Writes merge onto the
// current file contents and replace the file atomically. StartWatcher keeps
// the in-memory copy in step with edits made by other processes and publishes
// one event per key that changed.
type FileStorage struct {
	path string
	dir  string
	base string
	opts options

	mu     sync.Mutex
	items  map[string]string // last known contents, including our own writes
	loaded bool
}

// NewFileStorage creates a storage for the given JSON file path.
// The file is created on first write if it does not exist.
func NewFileStorage(path string, opts ...Option) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("storage file path is required")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "" || dir == "." {
		dir = "."
	}

	return &FileStorage{path: path, dir: dir, base: base, opts: buildOptions(opts)}, nil
}

// Path returns the backing file path.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Read(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opts.disabled {
		return "", false, ErrDisabled
	}
	if err := f.ensureLoadedUnlocked(); err != nil {
		return "", false, err
	}
	value, ok := f.items[key]
	return value, ok, nil
}

func (f *FileStorage) Write(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opts.disabled {
		return ErrDisabled
	}
	if err := f.ensureLoadedUnlocked(); err != nil {
		return err
	}

	// merge onto what is on disk now so concurrent writers of other keys are kept
	current, err := f.loadUnlocked()
	if err != nil {
		return err
	}
	if err := f.opts.checkWrite(current, key, value); err != nil {
		return err
	}
	current[key] = value

	if err := f.saveUnlocked(current); err != nil {
		return err
	}
	// only our key moves in the cache: other keys that changed on disk are
	// still reported by the watcher
	f.items[key] = value
	logger.WithKey("file-storage", key).Tracef("write: %d bytes", len(value))
	return nil
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opts.disabled {
		return ErrDisabled
	}
	if f.opts.readOnly {
		return ErrReadOnly
	}
	if err := f.ensureLoadedUnlocked(); err != nil {
		return err
	}

	current, err := f.loadUnlocked()
	if err != nil {
		return err
	}
	if _, ok := current[key]; !ok {
		delete(f.items, key)
		return nil
	}
	delete(current, key)
	if err := f.saveUnlocked(current); err != nil {
		return err
	}
	delete(f.items, key)
	return nil
}

// Keys returns the stored keys in lexical order.
func (f *FileStorage) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opts.disabled {
		return nil, ErrDisabled
	}
	if err := f.ensureLoadedUnlocked(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ensureLoadedUnlocked fills the cache from disk on first use (caller must hold the lock).
func (f *FileStorage) ensureLoadedUnlocked() error {
	if f.loaded {
		return nil
	}
	items, err := f.loadUnlocked()
	if err != nil {
		return err
	}
	f.items = items
	f.loaded = true
	return nil
}

// loadUnlocked reads the JSON file without acquiring the lock (caller must hold it).
// A missing file is an empty storage.
func (f *FileStorage) loadUnlocked() (map[string]string, error) {
	payload, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("open storage file: %w: %w", errdefs.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("open storage file: %w: %w", errdefs.ErrUnavailable, err)
	}

	items := map[string]string{}
	if len(payload) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode storage file: %w: %w", errdefs.ErrDataLoss, err)
	}
	return items, nil
}

// saveUnlocked writes items atomically (caller must hold the lock).
func (f *FileStorage) saveUnlocked(items map[string]string) error {
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(f.dir, f.base+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), f.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}

	return nil
}

// StartWatcher listens for changes to the storage file and publishes an event
// for every key whose value differs from the cache.
// It watches the parent directory (not the file) so atomic replace sequences
// (temp+rename) are still observed. Each filesystem event triggers a reload;
// repeated events for the same content publish nothing because the diff is empty.
// Cancel ctx to stop the goroutine and close the watcher.
func (f *FileStorage) StartWatcher(ctx context.Context, publisher notify.Publisher) error {
	if publisher == nil {
		return errors.New("publisher is required")
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	f.mu.Lock()
	err := f.ensureLoadedUnlocked()
	f.mu.Unlock()
	if err != nil {
		// start anyway: a later valid rewrite of the file recovers the cache
		logger.WithComponent("file-storage").Warnf("initial load failed: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	onChange := f.MakeWatcherCallback(publisher)

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("file-storage").Debug("watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != f.base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithComponent("file-storage").Errorf("watcher error: %v", err)
			}
		}
	}()

	return nil
}

// MakeWatcherCallback returns a callback that reloads the file and publishes
// the keys that changed since the last reload or local write.
func (f *FileStorage) MakeWatcherCallback(publisher notify.Publisher) func() {
	return func() {
		events, err := f.refresh()
		if err != nil {
			logger.WithComponent("file-storage").Warnf("watch reload failed: %v", err)
			return
		}
		for _, ev := range events {
			logger.WithKey("file-storage", ev.Key).Debugf("external change detected (present=%v)", ev.Present)
			publisher.Publish(ev)
		}
	}
}

// refresh reloads the file into the cache and returns the differences, sorted by key.
func (f *FileStorage) refresh() ([]notify.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh, err := f.loadUnlocked()
	if err != nil {
		return nil, err
	}
	events := diffItems(f.items, fresh)
	f.items = fresh
	f.loaded = true
	return events, nil
}

func diffItems(old, fresh map[string]string) []notify.Event {
	var events []notify.Event
	for k, v := range fresh {
		if prev, ok := old[k]; !ok || prev != v {
			events = append(events, notify.Event{Key: k, Value: v, Present: true})
		}
	}
	for k := range old {
		if _, ok := fresh[k]; !ok {
			events = append(events, notify.Event{Key: k, Present: false})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Key < events[j].Key })
	return events
}
