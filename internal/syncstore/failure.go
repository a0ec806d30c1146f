package syncstore

import (
	"errors"
	"fmt"
)

// Kind classifies a failure recovered by a Store.
type Kind string

const (
	KindStorageRead  Kind = "storage_read"
	KindDecode       Kind = "decode"
	KindEncode       Kind = "encode"
	KindStorageWrite Kind = "storage_write"
)

var (
	ErrStorageRead  = errors.New("storage read failed")
	ErrDecode       = errors.New("decode failed")
	ErrEncode       = errors.New("encode failed")
	ErrStorageWrite = errors.New("storage write failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindStorageRead:
		return ErrStorageRead
	case KindDecode:
		return ErrDecode
	case KindEncode:
		return ErrEncode
	case KindStorageWrite:
		return ErrStorageWrite
	default:
		return nil
	}
}

// Failure describes an error a Store recovered from. It is handed to the
// Reporter and never returned to callers.
//
// errors.Is matches both the kind sentinel (ErrDecode, ...) and the cause.
type Failure struct {
	Kind  Kind
	Key   string
	Value any // value being written, or the fallback adopted on read
	Raw   string
	// HasRaw is set when Raw carries the stored or encoded form.
	HasRaw bool
	Codec  string
	Err    error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindStorageRead:
		return fmt.Sprintf("store %q could not be restored from storage: %v; using initial value %v", f.Key, f.Err, f.Value)
	case KindDecode:
		return fmt.Sprintf("stored value for %q (%q) could not be decoded with %s: %v; using initial value %v", f.Key, f.Raw, f.Codec, f.Err, f.Value)
	case KindEncode:
		return fmt.Sprintf("store %q was set to %v but it could not be encoded with %s: %v; it will not be persisted", f.Key, f.Value, f.Codec, f.Err)
	case KindStorageWrite:
		return fmt.Sprintf("store %q new value %v (encoded as %q) could not be persisted: %v", f.Key, f.Value, f.Raw, f.Err)
	default:
		return fmt.Sprintf("store %q: %v", f.Key, f.Err)
	}
}

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := f.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}
