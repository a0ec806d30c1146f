package cache

// ReadOnlyRegistry is the minimal registry API for read-only handlers.
type ReadOnlyRegistry interface {
	Keys() ([]string, error)
	Get(key string) (any, error)
}

// StoreRegistry is the registry API needed by the store handlers.
type StoreRegistry interface {
	ReadOnlyRegistry
	Set(key string, value any) error
	Update(key string, fn func(any) any) error
	Subscribe(key string, fn func(any)) (unsubscribe func(), err error)
	Remove(key string) error
}

var _ StoreRegistry = (*Registry)(nil)
