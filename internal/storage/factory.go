package storage

import (
	"fmt"
)

const (
	TypeFile   = "file"
	TypeMemory = "memory"
)

// NewStorageFromType creates a KeyValueStore for the given storage type.
// "file" (default) needs filePath; "memory" ignores it.
func NewStorageFromType(storageType, filePath string, opts ...Option) (KeyValueStore, error) {
	switch storageType {
	case TypeMemory:
		return NewMemoryStorage(opts...), nil
	case TypeFile, "":
		return NewFileStorage(filePath, opts...)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (supported: %s, %s)", storageType, TypeFile, TypeMemory)
	}
}
