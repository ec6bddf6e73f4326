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
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Reserved field names carry object identity. Registered fields may not use
// the reserved prefix.
const (
	reservedPrefix = "__"
	fieldObjectID  = "__id__"
	fieldReference = "__ref__"
)

// An Envelope is the serialized record of one encoded object: the name of its
// registered type, its named fields, and any opaque blobs that must not be
// decoded recursively.
//
// FieldsData[i] holds the bytes of FieldsName[i]. For composite fields those
// bytes are the binary wire encoding of a nested Envelope; for blob fields
// they hold the varint index of the payload in NonrecursiveBlob.
type Envelope struct {
	FullyQualifiedName string
	FieldsName         []string
	FieldsData         [][]byte
	NonrecursiveBlob   [][]byte
}

// Field returns the bytes stored under name.
func (e *Envelope) Field(name string) ([]byte, bool) {
	for i, n := range e.FieldsName {
		if n == name && i < len(e.FieldsData) {
			return e.FieldsData[i], true
		}
	}
	return nil, false
}

// IsReference reports whether the envelope points at an object encoded
// earlier in the same graph rather than carrying the object itself.
func (e *Envelope) IsReference() bool {
	return len(e.FieldsName) == 1 && e.FieldsName[0] == fieldReference
}

// Validate checks the structural invariants of the envelope: names and data
// are positionally aligned and names are unique. It doesn't consult a
// registry.
func (e *Envelope) Validate() error {
	if _, err := e.index(); err != nil {
		return err
	}
	return nil
}

// index maps field names to their positions, failing on the structural
// violations that make positional lookup ambiguous.
func (e *Envelope) index() (map[string]int, *Error) {
	if len(e.FieldsName) != len(e.FieldsData) {
		return nil, errorf(
			CodeMalformedEnvelope,
			"%d field names but %d field values",
			len(e.FieldsName), len(e.FieldsData),
		).withType(e.FullyQualifiedName)
	}
	positions := make(map[string]int, len(e.FieldsName))
	for i, name := range e.FieldsName {
		if _, dup := positions[name]; dup {
			return nil, errorf(CodeMalformedEnvelope, "duplicate field name %q", name).
				withType(e.FullyQualifiedName)
		}
		positions[name] = i
	}
	return positions, nil
}

func (e *Envelope) appendField(name string, data []byte) {
	e.FieldsName = append(e.FieldsName, name)
	e.FieldsData = append(e.FieldsData, data)
}

func (e *Envelope) appendBlob(blob []byte) uint64 {
	e.NonrecursiveBlob = append(e.NonrecursiveBlob, blob)
	return uint64(len(e.NonrecursiveBlob) - 1)
}

func newReference(typeName string, id uint64) *Envelope {
	env := &Envelope{FullyQualifiedName: typeName}
	env.appendField(fieldReference, protowire.AppendVarint(nil, id))
	return env
}

func isReserved(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}

// consumeID reads a varint that must span data exactly.
func consumeID(data []byte) (uint64, error) {
	id, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if n != len(data) {
		return 0, errTrailingBytes(len(data) - n)
	}
	return id, nil
}
