package syncstore

import (
	"encoding/json"
	"errors"

	"gopkg.in/yaml.v3"
)

// Codec converts values to and from the raw strings kept in storage.
// Nothing requires Deserialize(Serialize(v)) == v.
type Codec[T any] interface {
	Serialize(value T) (string, error)
	Deserialize(raw string) (T, error)
	// Name identifies the codec in failure reports.
	Name() string
}

// JSONCodec is the default codec.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Serialize(value T) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONCodec[T]) Deserialize(raw string) (T, error) {
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

func (JSONCodec[T]) Name() string {
	return "json"
}

// YAMLCodec stores values as YAML documents.
type YAMLCodec[T any] struct{}

func (YAMLCodec[T]) Serialize(value T) (string, error) {
	b, err := yaml.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (YAMLCodec[T]) Deserialize(raw string) (T, error) {
	var value T
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

func (YAMLCodec[T]) Name() string {
	return "yaml"
}

// CodecFuncs builds a Codec from a pair of functions.
type CodecFuncs[T any] struct {
	SerializeFunc   func(T) (string, error)
	DeserializeFunc func(string) (T, error)
	CodecName       string
}

func (c CodecFuncs[T]) Serialize(value T) (string, error) {
	if c.SerializeFunc == nil {
		return "", errors.New("no serialize func")
	}
	return c.SerializeFunc(value)
}

func (c CodecFuncs[T]) Deserialize(raw string) (T, error) {
	if c.DeserializeFunc == nil {
		var zero T
		return zero, errors.New("no deserialize func")
	}
	return c.DeserializeFunc(raw)
}

func (c CodecFuncs[T]) Name() string {
	if c.CodecName == "" {
		return "custom"
	}
	return c.CodecName
}
