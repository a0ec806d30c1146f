package storage

import (
	"errors"
	"testing"

	"github.com/containerd/errdefs"
)

func TestMemoryStorage_ReadMissingKey(t *testing.T) {
	ms := NewMemoryStorage()

	value, ok, err := ms.Read("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected key to be absent, got %q", value)
	}
}

func TestMemoryStorage_WriteThenRead(t *testing.T) {
	ms := NewMemoryStorage()

	if err := ms.Write("count", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value, ok, err := ms.Read("count")
	if err != nil || !ok {
		t.Fatalf("expected value, got ok=%v err=%v", ok, err)
	}
	if value != "5" {
		t.Errorf("expected '5', got '%s'", value)
	}
}

func TestMemoryStorage_FromMap(t *testing.T) {
	ms := NewMemoryStorageFromMap(map[string]string{"b": "2", "a": "1"})

	keys, err := ms.Keys()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("expected sorted keys [a b], got %v", keys)
	}
}

func TestMemoryStorage_Quota(t *testing.T) {
	ms := NewMemoryStorage(WithQuota(10))

	if err := ms.Write("k", "12345"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// replacing the same key only counts the new value
	if err := ms.Write("k", "123456789"); err != nil {
		t.Fatalf("unexpected error on replace: %v", err)
	}

	err := ms.Write("other", "123456")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !errdefs.IsResourceExhausted(err) {
		t.Error("expected quota error to be classified as resource exhausted")
	}

	if _, ok, _ := ms.Read("other"); ok {
		t.Error("expected rejected write to leave storage untouched")
	}
}

func TestMemoryStorage_ReadOnly(t *testing.T) {
	ms := NewMemoryStorageFromMap(map[string]string{"k": "v"}, ReadOnly())

	if err := ms.Write("k", "x"); !errdefs.IsPermissionDenied(err) {
		t.Errorf("expected permission denied, got %v", err)
	}
	if err := ms.Remove("k"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly on remove, got %v", err)
	}

	ms.SetReadOnly(false)
	if err := ms.Write("k", "x"); err != nil {
		t.Errorf("expected write to succeed after SetReadOnly(false), got %v", err)
	}
}

func TestMemoryStorage_Disabled(t *testing.T) {
	ms := NewMemoryStorage()
	ms.SetDisabled(true)

	if _, _, err := ms.Read("k"); !errdefs.IsUnavailable(err) {
		t.Errorf("expected unavailable on read, got %v", err)
	}
	if err := ms.Write("k", "v"); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled on write, got %v", err)
	}
	if _, err := ms.Keys(); err == nil {
		t.Error("expected error listing keys")
	}
}

func TestMemoryStorage_Remove(t *testing.T) {
	ms := NewMemoryStorageFromMap(map[string]string{"k": "v"})

	if err := ms.Remove("k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := ms.Read("k"); ok {
		t.Error("expected key to be removed")
	}
}
