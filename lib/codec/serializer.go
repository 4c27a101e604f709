// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"
)

// Serializer converts command arguments and results between Go values
// and the opaque byte strings carried by the interface proxy protocol.
// One serializer is registered per command or event; implementations
// must be safe for concurrent use.
type Serializer interface {
	// Serialize encodes v. Returns an error if v is not of the
	// serializer's type.
	Serialize(v any) ([]byte, error)

	// Deserialize decodes data into a new value of the serializer's
	// type and returns it boxed.
	Deserialize(data []byte) (any, error)

	// Prototype returns the encoding of the type's zero value. It is
	// embedded in interface descriptors so a peer can build a matching
	// placeholder without knowing the Go type.
	Prototype() []byte

	// TypeName names the payload type for descriptors and logs.
	TypeName() string
}

// TypedSerializer is the CBOR [Serializer] for values of type T.
type TypedSerializer[T any] struct{}

// For returns the CBOR serializer for T.
func For[T any]() Serializer {
	return TypedSerializer[T]{}
}

// Serialize encodes v, which must be a T or *T.
func (TypedSerializer[T]) Serialize(v any) ([]byte, error) {
	switch typed := v.(type) {
	case T:
		return Marshal(typed)
	case *T:
		if typed == nil {
			return nil, fmt.Errorf("serializing %s: nil pointer", typeName[T]())
		}
		return Marshal(*typed)
	default:
		return nil, fmt.Errorf("serializing %s: got %T", typeName[T](), v)
	}
}

// Deserialize decodes data into a T.
func (TypedSerializer[T]) Deserialize(data []byte) (any, error) {
	var value T
	if err := Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("deserializing %s: %w", typeName[T](), err)
	}
	return value, nil
}

// Prototype returns the CBOR encoding of T's zero value.
func (TypedSerializer[T]) Prototype() []byte {
	var zero T
	data, err := Marshal(zero)
	if err != nil {
		return nil
	}
	return data
}

// TypeName returns the Go type name of T.
func (TypedSerializer[T]) TypeName() string {
	return typeName[T]()
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
