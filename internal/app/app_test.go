package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bassista/go_syncstore/internal/cache"
	"github.com/bassista/go_syncstore/internal/config"
	"github.com/bassista/go_syncstore/internal/notify"
	"github.com/bassista/go_syncstore/internal/storage"
	"github.com/bassista/go_syncstore/internal/syncstore"
)

// mockWatchedStorage implements storage.KeyValueStore and storage.Watcher for testing
type mockWatchedStorage struct {
	*storage.MemoryStorage
	watcherStarted bool
	watcherErr     error
	publisher      notify.Publisher
}

func (m *mockWatchedStorage) StartWatcher(ctx context.Context, publisher notify.Publisher) error {
	if m.watcherErr != nil {
		return m.watcherErr
	}
	m.watcherStarted = true
	m.publisher = publisher
	return nil
}

func newDeps() (*config.Config, *storage.MemoryStorage, *notify.Hub, *cache.Registry) {
	cfg := &config.Config{Storage: config.StorageConfig{Enabled: true}}
	mem := storage.NewMemoryStorage()
	hub := notify.NewHub()
	reg := cache.NewRegistry(syncstore.Backend{Storage: mem, Channel: hub}, true)
	return cfg, mem, hub, reg
}

func TestNew_Success(t *testing.T) {
	cfg, mem, hub, reg := newDeps()

	app, err := New(cfg, mem, hub, reg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if app.Config != cfg {
		t.Error("config not set correctly")
	}
	if app.Storage == nil {
		t.Error("storage should not be nil")
	}
	if app.Hub != hub {
		t.Error("hub not set correctly")
	}
	if app.Registry != reg {
		t.Error("registry not set correctly")
	}
	if app.BaseCtx == nil {
		t.Error("BaseCtx should not be nil")
	}
	if app.Cancel == nil {
		t.Error("Cancel should not be nil")
	}
}

func TestNew_NilDependencies(t *testing.T) {
	cfg, mem, hub, reg := newDeps()

	tests := []struct {
		name    string
		build   func() (*App, error)
		message string
	}{
		{"nil config", func() (*App, error) { return New(nil, mem, hub, reg) }, "config is nil"},
		{"nil storage", func() (*App, error) { return New(cfg, nil, hub, reg) }, "storage is nil"},
		{"nil hub", func() (*App, error) { return New(cfg, mem, nil, reg) }, "hub is nil"},
		{"nil registry", func() (*App, error) { return New(cfg, mem, hub, nil) }, "registry is nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, err := tt.build()
			if err == nil || err.Error() != tt.message {
				t.Errorf("expected error %q, got %v", tt.message, err)
			}
			if app != nil {
				t.Error("expected nil app on error")
			}
		})
	}
}

func TestStartWatchers_WatchedStorage(t *testing.T) {
	cfg, _, hub, reg := newDeps()
	ws := &mockWatchedStorage{MemoryStorage: storage.NewMemoryStorage()}

	app, _ := New(cfg, ws, hub, reg)
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ws.watcherStarted {
		t.Error("expected watcher to be started")
	}
	if ws.publisher != hub {
		t.Error("expected watcher to publish into the hub")
	}
}

func TestStartWatchers_Error(t *testing.T) {
	cfg, _, hub, reg := newDeps()
	ws := &mockWatchedStorage{MemoryStorage: storage.NewMemoryStorage(), watcherErr: errors.New("no inotify")}

	app, _ := New(cfg, ws, hub, reg)
	defer app.Shutdown()

	if err := app.StartWatchers(); err == nil {
		t.Error("expected watcher error")
	}
}

func TestStartWatchers_DisabledStorage(t *testing.T) {
	cfg, _, hub, reg := newDeps()
	cfg.Storage.Enabled = false
	ws := &mockWatchedStorage{MemoryStorage: storage.NewMemoryStorage()}

	app, _ := New(cfg, ws, hub, reg)
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ws.watcherStarted {
		t.Error("watcher should not start for disabled storage")
	}
}

func TestStartWatchers_MemoryStorageSkipped(t *testing.T) {
	cfg, mem, hub, reg := newDeps()
	app, _ := New(cfg, mem, hub, reg)
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		t.Errorf("expected no error for memory storage, got %v", err)
	}
}

func TestStartWatchers_FileStorageFeedsRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	fs, err := storage.NewFileStorage(path)
	if err != nil {
		t.Fatalf("cannot create file storage: %v", err)
	}
	hub := notify.NewHub()
	reg := cache.NewRegistry(syncstore.Backend{Storage: fs, Channel: hub}, true)
	cfg := &config.Config{Storage: config.StorageConfig{Enabled: true, Type: storage.TypeFile, FilePath: path}}

	app, _ := New(cfg, fs, hub, reg)
	defer app.Shutdown()

	if err := reg.Set("count", float64(1)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := app.StartWatchers(); err != nil {
		t.Fatalf("cannot start watchers: %v", err)
	}

	// another process rewrites the file
	if err := os.WriteFile(path, []byte(`{"count":"7"}`), 0o644); err != nil {
		t.Fatalf("cannot write file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := reg.Get("count"); v == float64(7) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	v, _ := reg.Get("count")
	t.Errorf("expected registry to follow the file, got %v", v)
}

func TestStorageOptions(t *testing.T) {
	opts := StorageOptions(config.StorageConfig{Enabled: true, QuotaBytes: 4, ReadOnly: false})
	mem := storage.NewMemoryStorage(opts...)
	if err := mem.Write("key", "value"); !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Errorf("expected quota error, got %v", err)
	}

	opts = StorageOptions(config.StorageConfig{Enabled: true, ReadOnly: true})
	mem = storage.NewMemoryStorage(opts...)
	if err := mem.Write("k", "v"); !errors.Is(err, storage.ErrReadOnly) {
		t.Errorf("expected read-only error, got %v", err)
	}

	opts = StorageOptions(config.StorageConfig{Enabled: false})
	mem = storage.NewMemoryStorage(opts...)
	if _, _, err := mem.Read("k"); !errors.Is(err, storage.ErrDisabled) {
		t.Errorf("expected disabled error, got %v", err)
	}
}

func TestApp_Shutdown(t *testing.T) {
	cfg, mem, hub, reg := newDeps()
	app, _ := New(cfg, mem, hub, reg)

	if _, err := reg.Open("k", nil); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	select {
	case <-app.BaseCtx.Done():
		t.Error("context should not be done before shutdown")
	default:
	}

	app.Shutdown()

	select {
	case <-app.BaseCtx.Done():
	default:
		t.Error("context should be done after shutdown")
	}
	if reg.Len() != 0 {
		t.Errorf("expected all stores closed, %d still open", reg.Len())
	}
	if hub.Subscribers("k") != 0 {
		t.Error("expected store to stop listening after shutdown")
	}
}

func TestApp_Shutdown_Nil(t *testing.T) {
	// Should not panic
	var app *App
	app.Shutdown()
}

func TestApp_Shutdown_NilCancel(t *testing.T) {
	// Should not panic
	app := &App{
		Cancel: nil,
	}
	app.Shutdown()
}
