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
	"google.golang.org/protobuf/encoding/protowire"
)

// encoder holds the state of one top-level Encode call. Objects get ids in
// the order encoding starts on them; a second visit to the same pointer emits
// a reference envelope instead of the object, which is what keeps cyclic
// graphs finite.
type encoder struct {
	registry *Registry
	maxDepth int
	ids      map[any]uint64
	nextID   uint64
	depth    int
}

func newEncoder(c *Codec) *encoder {
	return &encoder{
		registry: c.registry,
		maxDepth: c.maxDepth,
		ids:      make(map[any]uint64),
	}
}

func (e *encoder) encode(obj any) (*Envelope, error) {
	if obj == nil {
		return nil, errorf(CodeInvalidValue, "can't encode nil")
	}
	cls, ok := e.registry.classOf(obj)
	if !ok {
		return nil, errorf(CodeUnregisteredType, "no class registered for %T", obj)
	}
	if cls.isNil(obj) {
		return nil, errorf(CodeInvalidValue, "can't encode nil %T", obj).withType(cls.name)
	}
	if id, seen := e.ids[obj]; seen {
		return newReference(cls.name, id), nil
	}
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > e.maxDepth {
		return nil, errorf(CodeRecursionLimitExceeded, "object graph nested deeper than %d", e.maxDepth).
			withType(cls.name)
	}
	e.nextID++
	id := e.nextID
	e.ids[obj] = id

	env := &Envelope{
		FullyQualifiedName: cls.name,
		FieldsName:         make([]string, 0, len(cls.fields)+1),
		FieldsData:         make([][]byte, 0, len(cls.fields)+1),
	}
	env.appendField(fieldObjectID, protowire.AppendVarint(nil, id))
	for _, f := range cls.fields {
		data, err := f.encode(obj, e)
		if err != nil {
			return nil, descend(err, f.name, cls.name)
		}
		if f.route == RouteBlob {
			data = protowire.AppendVarint(nil, env.appendBlob(data))
		}
		env.appendField(f.name, data)
	}
	return env, nil
}

// nested encodes a composite field value into the binary form stored in
// FieldsData. Nil values encode as zero bytes.
func (e *encoder) nested(obj any) ([]byte, error) {
	if obj == nil {
		return nil, nil
	}
	if cls, ok := e.registry.classOf(obj); ok && cls.isNil(obj) {
		return nil, nil
	}
	env, err := e.encode(obj)
	if err != nil {
		return nil, err
	}
	data, err := marshalEnvelope(env)
	if err != nil {
		return nil, errorf(CodeInvalidValue, "marshal nested envelope: %w", err).withType(env.FullyQualifiedName)
	}
	return data, nil
}
