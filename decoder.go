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
	"context"
	"log/slog"

	"google.golang.org/protobuf/encoding/protowire"
)

// decoder holds the state of one top-level Decode call. The arena holds every
// object under construction, keyed by the id its envelope declared. Objects
// enter the arena as empty placeholders before their fields are decoded, so a
// reference back to an ancestor resolves to the same instance that's being
// filled in.
type decoder struct {
	registry *Registry
	maxDepth int
	logger   *slog.Logger
	arena    map[uint64]any
	depth    int
}

func newDecoder(c *Codec) *decoder {
	return &decoder{
		registry: c.registry,
		maxDepth: c.maxDepth,
		logger:   c.logger,
		arena:    make(map[uint64]any),
	}
}

func (d *decoder) decode(env *Envelope) (any, error) {
	cls, ok := d.registry.lookup(env.FullyQualifiedName)
	if !ok {
		return nil, errorf(CodeUnregisteredType, "type isn't registered").withType(env.FullyQualifiedName)
	}
	positions, err := env.index()
	if err != nil {
		return nil, err
	}
	if pos, ok := positions[fieldReference]; ok {
		return d.resolveReference(cls, env, pos)
	}

	d.depth++
	defer func() { d.depth-- }()
	if d.depth > d.maxDepth {
		return nil, errorf(CodeRecursionLimitExceeded, "envelopes nested deeper than %d", d.maxDepth).
			withType(cls.name)
	}

	obj := cls.newFn()
	if pos, ok := positions[fieldObjectID]; ok {
		id, err := consumeID(env.FieldsData[pos])
		if err != nil {
			return nil, errorf(CodeMalformedEnvelope, "object id: %w", err).withType(cls.name)
		}
		if _, dup := d.arena[id]; dup {
			return nil, errorf(CodeMalformedEnvelope, "object id %d declared twice", id).withType(cls.name)
		}
		d.arena[id] = obj
	}
	for _, f := range cls.fields {
		pos, ok := positions[f.name]
		if !ok {
			if f.optional {
				continue
			}
			return nil, errorf(CodeMissingField, "required field %q is absent", f.name).withType(cls.name)
		}
		data := env.FieldsData[pos]
		if f.route == RouteBlob {
			blob, err := blobAt(env, data)
			if err != nil {
				return nil, descend(err, f.name, cls.name)
			}
			data = blob
		}
		if err := f.decode(obj, data, d); err != nil {
			return nil, descend(err, f.name, cls.name)
		}
	}
	if unknown := len(env.FieldsName) - d.known(cls, positions); unknown > 0 && d.logger.Enabled(context.Background(), slog.LevelDebug) {
		d.logger.Debug("ignoring unknown envelope fields",
			slog.String("type", cls.name),
			slog.Int("count", unknown),
		)
	}
	return obj, nil
}

func (d *decoder) resolveReference(cls *class, env *Envelope, pos int) (any, error) {
	if len(env.FieldsName) != 1 {
		return nil, errorf(CodeMalformedEnvelope, "reference envelope carries %d other fields", len(env.FieldsName)-1).
			withType(cls.name)
	}
	id, err := consumeID(env.FieldsData[pos])
	if err != nil {
		return nil, errorf(CodeMalformedEnvelope, "reference id: %w", err).withType(cls.name)
	}
	obj, ok := d.arena[id]
	if !ok {
		return nil, errorf(CodeMalformedEnvelope, "reference to unknown object %d", id).withType(cls.name)
	}
	if !cls.owns(obj) {
		return nil, errorf(CodeMalformedEnvelope, "reference to object %d of type %T", id, obj).withType(cls.name)
	}
	return obj, nil
}

// known counts the envelope's fields that the class or the identity scheme
// understands.
func (d *decoder) known(cls *class, positions map[string]int) int {
	n := 0
	if _, ok := positions[fieldObjectID]; ok {
		n++
	}
	for _, f := range cls.fields {
		if _, ok := positions[f.name]; ok {
			n++
		}
	}
	return n
}

// nested decodes the bytes of a composite field. Zero bytes decode to nil.
func (d *decoder) nested(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, errorf(CodeMalformedEnvelope, "unmarshal nested envelope: %w", err)
	}
	return d.decode(env)
}

func blobAt(env *Envelope, data []byte) ([]byte, error) {
	index, n := protowire.ConsumeVarint(data)
	if n < 0 || n != len(data) {
		return nil, errorf(CodeMalformedEnvelope, "blob index isn't a varint")
	}
	if index >= uint64(len(env.NonrecursiveBlob)) {
		return nil, errorf(CodeMalformedEnvelope, "blob index %d out of range [0, %d)", index, len(env.NonrecursiveBlob))
	}
	return env.NonrecursiveBlob[index], nil
}
