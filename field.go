// Copyright 2021-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serde

import (
	"fmt"
	"math"
	"sort"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// A Route says where a field's bytes travel in an envelope.
type Route uint8

const (
	// RouteData stores the field's raw value bytes in FieldsData.
	RouteData Route = iota + 1
	// RouteNested stores the binary encoding of nested envelopes in
	// FieldsData.
	RouteNested
	// RouteBlob appends the field's bytes to NonrecursiveBlob and stores the
	// blob's varint index in FieldsData. Blobs are never decoded as envelopes.
	RouteBlob
)

func (r Route) String() string {
	switch r {
	case RouteData:
		return "data"
	case RouteNested:
		return "nested"
	case RouteBlob:
		return "blob"
	}
	return fmt.Sprintf("Route(%d)", r)
}

// A Field describes one named field of a registered type T: how to read its
// value out of a *T, how to write it back, and where its bytes travel. Fields
// are built with the constructors in this file and passed to Register; the
// order they're passed in is the order they're encoded in.
type Field[T any] struct {
	name     string
	route    Route
	optional bool
	encode   func(*T, *encoder) ([]byte, error)
	decode   func(*T, []byte, *decoder) error
}

// Name returns the field's name in envelopes.
func (f Field[T]) Name() string { return f.name }

// Route returns where the field's bytes travel.
func (f Field[T]) Route() Route { return f.route }

// Optional returns a copy of the field that may be absent from decoded
// envelopes. Absent optional fields keep the value the constructor gave them.
func (f Field[T]) Optional() Field[T] {
	f.optional = true
	return f
}

// erase drops the type parameter so classes of different types can share one
// registry. The assertions can't fail: the registry only hands a class objects
// of its own type.
func (f Field[T]) erase() fieldDescriptor {
	return fieldDescriptor{
		name:     f.name,
		route:    f.route,
		optional: f.optional,
		encode: func(obj any, enc *encoder) ([]byte, error) {
			return f.encode(obj.(*T), enc)
		},
		decode: func(obj any, data []byte, dec *decoder) error {
			return f.decode(obj.(*T), data, dec)
		},
	}
}

type fieldDescriptor struct {
	name     string
	route    Route
	optional bool
	encode   func(any, *encoder) ([]byte, error)
	decode   func(any, []byte, *decoder) error
}

// Bytes declares a byte slice field stored as-is in FieldsData.
func Bytes[T any](name string, get func(*T) []byte, set func(*T, []byte)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			return get(obj), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			set(obj, append([]byte(nil), data...))
			return nil
		},
	}
}

// Blob declares an opaque payload routed to NonrecursiveBlob.
func Blob[T any](name string, get func(*T) []byte, set func(*T, []byte)) Field[T] {
	f := Bytes(name, get, set)
	f.route = RouteBlob
	return f
}

// String declares a UTF-8 string field.
func String[T any](name string, get func(*T) string, set func(*T, string)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			return []byte(get(obj)), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			set(obj, string(data))
			return nil
		},
	}
}

// Int declares a signed integer field, encoded as a zig-zag varint.
func Int[T any](name string, get func(*T) int64, set func(*T, int64)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			return protowire.AppendVarint(nil, protowire.EncodeZigZag(get(obj))), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			v, err := consumeExactVarint(data)
			if err != nil {
				return err
			}
			set(obj, protowire.DecodeZigZag(v))
			return nil
		},
	}
}

// Uint declares an unsigned integer field, encoded as a varint.
func Uint[T any](name string, get func(*T) uint64, set func(*T, uint64)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			return protowire.AppendVarint(nil, get(obj)), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			v, err := consumeExactVarint(data)
			if err != nil {
				return err
			}
			set(obj, v)
			return nil
		},
	}
}

// Float declares a float64 field, encoded as its little-endian IEEE-754 bits.
func Float[T any](name string, get func(*T) float64, set func(*T, float64)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			return protowire.AppendFixed64(nil, math.Float64bits(get(obj))), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			bits, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if n != len(data) {
				return errTrailingBytes(len(data) - n)
			}
			set(obj, math.Float64frombits(bits))
			return nil
		},
	}
}

// Bool declares a boolean field.
func Bool[T any](name string, get func(*T) bool, set func(*T, bool)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			return protowire.AppendVarint(nil, protowire.EncodeBool(get(obj))), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			v, err := consumeExactVarint(data)
			if err != nil {
				return err
			}
			if v > 1 {
				return fmt.Errorf("bool value %d out of range", v)
			}
			set(obj, v == 1)
			return nil
		},
	}
}

// Time declares a timestamp field with nanosecond precision. Decoded values
// are in UTC.
func Time[T any](name string, get func(*T) time.Time, set func(*T, time.Time)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			t := get(obj)
			b := protowire.AppendVarint(nil, protowire.EncodeZigZag(t.Unix()))
			return protowire.AppendVarint(b, uint64(t.Nanosecond())), nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			secs, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			nanos, err := consumeExactVarint(data[n:])
			if err != nil {
				return err
			}
			if nanos >= uint64(time.Second) {
				return fmt.Errorf("nanoseconds %d out of range", nanos)
			}
			set(obj, time.Unix(protowire.DecodeZigZag(secs), int64(nanos)).UTC())
			return nil
		},
	}
}

// Strings declares a list of strings, each length-delimited.
func Strings[T any](name string, get func(*T) []string, set func(*T, []string)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			var b []byte
			for _, s := range get(obj) {
				b = protowire.AppendString(b, s)
			}
			return b, nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			var values []string
			for len(data) > 0 {
				s, n := protowire.ConsumeString(data)
				if n < 0 {
					return protowire.ParseError(n)
				}
				values = append(values, s)
				data = data[n:]
			}
			set(obj, values)
			return nil
		},
	}
}

// StringMap declares a map of strings, encoded as length-delimited key/value
// pairs in sorted key order so equal maps encode identically.
func StringMap[T any](name string, get func(*T) map[string]string, set func(*T, map[string]string)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteData,
		encode: func(obj *T, _ *encoder) ([]byte, error) {
			m := get(obj)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var b []byte
			for _, k := range keys {
				b = protowire.AppendString(b, k)
				b = protowire.AppendString(b, m[k])
			}
			return b, nil
		},
		decode: func(obj *T, data []byte, _ *decoder) error {
			var m map[string]string
			for len(data) > 0 {
				k, n := protowire.ConsumeString(data)
				if n < 0 {
					return protowire.ParseError(n)
				}
				data = data[n:]
				v, n := protowire.ConsumeString(data)
				if n < 0 {
					return fmt.Errorf("value for key %q: %w", k, protowire.ParseError(n))
				}
				data = data[n:]
				if m == nil {
					m = make(map[string]string)
				}
				if _, dup := m[k]; dup {
					return fmt.Errorf("duplicate map key %q", k)
				}
				m[k] = v
			}
			set(obj, m)
			return nil
		},
	}
}

// Object declares a field holding any registered object, or nil. The value is
// encoded recursively into its own envelope.
func Object[T any](name string, get func(*T) any, set func(*T, any)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteNested,
		encode: func(obj *T, enc *encoder) ([]byte, error) {
			return enc.nested(get(obj))
		},
		decode: func(obj *T, data []byte, dec *decoder) error {
			v, err := dec.nested(data)
			if err != nil {
				return err
			}
			set(obj, v)
			return nil
		},
	}
}

// Ref declares a field pointing at a registered composite type C. Shared and
// cyclic pointers decode to a single shared instance.
func Ref[T any, C any](name string, get func(*T) *C, set func(*T, *C)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteNested,
		encode: func(obj *T, enc *encoder) ([]byte, error) {
			c := get(obj)
			if c == nil {
				return nil, nil
			}
			return enc.nested(c)
		},
		decode: func(obj *T, data []byte, dec *decoder) error {
			c, err := decodeRef[C](dec, data)
			if err != nil {
				return err
			}
			set(obj, c)
			return nil
		},
	}
}

// Refs declares a list of pointers to a registered composite type C. Nil
// elements are preserved.
func Refs[T any, C any](name string, get func(*T) []*C, set func(*T, []*C)) Field[T] {
	return Field[T]{
		name:  name,
		route: RouteNested,
		encode: func(obj *T, enc *encoder) ([]byte, error) {
			var b []byte
			for i, c := range get(obj) {
				var nested []byte
				if c != nil {
					var err error
					if nested, err = enc.nested(c); err != nil {
						return nil, descend(err, elementIndex(i), "")
					}
				}
				b = protowire.AppendBytes(b, nested)
			}
			return b, nil
		},
		decode: func(obj *T, data []byte, dec *decoder) error {
			var list []*C
			for i := 0; len(data) > 0; i++ {
				nested, n := protowire.ConsumeBytes(data)
				if n < 0 {
					return fmt.Errorf("element %d: %w", i, protowire.ParseError(n))
				}
				data = data[n:]
				c, err := decodeRef[C](dec, nested)
				if err != nil {
					return descend(err, elementIndex(i), "")
				}
				list = append(list, c)
			}
			set(obj, list)
			return nil
		},
	}
}

func decodeRef[C any](dec *decoder, data []byte) (*C, error) {
	v, err := dec.nested(data)
	if err != nil || v == nil {
		return nil, err
	}
	c, ok := v.(*C)
	if !ok {
		var want *C
		return nil, errorf(CodeInvalidValue, "decoded %T, field holds %T", v, want)
	}
	return c, nil
}

// elementIndex is merged into the enclosing field name by descend, so list
// elements show up in paths as "name[i]".
func elementIndex(i int) string {
	return fmt.Sprintf("[%d]", i)
}

func consumeExactVarint(data []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if n != len(data) {
		return 0, errTrailingBytes(len(data) - n)
	}
	return v, nil
}

func errTrailingBytes(n int) error {
	return fmt.Errorf("%d trailing bytes after value", n)
}
