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

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	// FormatNameBinary is the name of the protocol buffer binary encoding of
	// envelopes. Nested envelopes are always stored in this format.
	FormatNameBinary = "proto"
	// FormatNameJSON is the name of the protocol buffer JSON mapping of
	// envelopes.
	FormatNameJSON = "json"

	envelopeMessageName = "syft.serde.RecursiveSerde"
)

// A WireFormat serializes whole envelopes to and from bytes.
type WireFormat interface {
	Name() string
	Marshal(*Envelope) ([]byte, error)
	Unmarshal([]byte, *Envelope) error
}

// The envelope schema is built from a descriptor at init rather than from
// generated code, so the module carries no protoc output.
var (
	envelopeDescriptor       protoreflect.MessageDescriptor
	fieldsNameDescriptor     protoreflect.FieldDescriptor
	fieldsDataDescriptor     protoreflect.FieldDescriptor
	fullyQualifiedDescriptor protoreflect.FieldDescriptor
	blobDescriptor           protoreflect.FieldDescriptor
)

func init() {
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	byt := descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()
	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("syft/serde/recursive_serde.proto"),
		Package: proto.String("syft.serde"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("RecursiveSerde"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{Name: proto.String("fields_name"), JsonName: proto.String("fieldsName"), Number: proto.Int32(1), Label: repeated, Type: str},
				{Name: proto.String("fields_data"), JsonName: proto.String("fieldsData"), Number: proto.Int32(2), Label: repeated, Type: byt},
				{Name: proto.String("fully_qualified_name"), JsonName: proto.String("fullyQualifiedName"), Number: proto.Int32(3), Label: optional, Type: str},
				{Name: proto.String("nonrecursive_blob"), JsonName: proto.String("nonrecursiveBlob"), Number: proto.Int32(4), Label: repeated, Type: byt},
			},
		}},
	}
	fd, err := protodesc.NewFile(file, nil)
	if err != nil {
		panic(fmt.Errorf("build %s descriptor: %w", envelopeMessageName, err))
	}
	envelopeDescriptor = fd.Messages().ByName("RecursiveSerde")
	fields := envelopeDescriptor.Fields()
	fieldsNameDescriptor = fields.ByNumber(1)
	fieldsDataDescriptor = fields.ByNumber(2)
	fullyQualifiedDescriptor = fields.ByNumber(3)
	blobDescriptor = fields.ByNumber(4)
}

// toProto copies the envelope into a dynamic protobuf message.
func (e *Envelope) toProto() *dynamicpb.Message {
	msg := dynamicpb.NewMessage(envelopeDescriptor)
	if e.FullyQualifiedName != "" {
		msg.Set(fullyQualifiedDescriptor, protoreflect.ValueOfString(e.FullyQualifiedName))
	}
	if len(e.FieldsName) > 0 {
		names := msg.Mutable(fieldsNameDescriptor).List()
		for _, name := range e.FieldsName {
			names.Append(protoreflect.ValueOfString(name))
		}
	}
	appendBytes(msg, fieldsDataDescriptor, e.FieldsData)
	appendBytes(msg, blobDescriptor, e.NonrecursiveBlob)
	return msg
}

func appendBytes(msg *dynamicpb.Message, fd protoreflect.FieldDescriptor, values [][]byte) {
	if len(values) == 0 {
		return
	}
	list := msg.Mutable(fd).List()
	for _, v := range values {
		list.Append(protoreflect.ValueOfBytes(v))
	}
}

// fromProto overwrites the envelope with the contents of msg. Byte slices are
// copied so the envelope never aliases a caller's buffer.
func (e *Envelope) fromProto(msg protoreflect.Message) {
	e.FullyQualifiedName = msg.Get(fullyQualifiedDescriptor).String()
	names := msg.Get(fieldsNameDescriptor).List()
	e.FieldsName = make([]string, names.Len())
	for i := range e.FieldsName {
		e.FieldsName[i] = names.Get(i).String()
	}
	e.FieldsData = copyBytesList(msg.Get(fieldsDataDescriptor).List())
	e.NonrecursiveBlob = copyBytesList(msg.Get(blobDescriptor).List())
}

func copyBytesList(list protoreflect.List) [][]byte {
	if list.Len() == 0 {
		return nil
	}
	out := make([][]byte, list.Len())
	for i := range out {
		out[i] = append([]byte{}, list.Get(i).Bytes()...)
	}
	return out
}

type wireProtobufBinary struct {
	marshalOptions proto.MarshalOptions
}

var _ WireFormat = (*wireProtobufBinary)(nil)

func (w *wireProtobufBinary) Name() string { return FormatNameBinary }

func (w *wireProtobufBinary) Marshal(env *Envelope) ([]byte, error) {
	return w.marshalOptions.Marshal(env.toProto())
}

func (w *wireProtobufBinary) Unmarshal(data []byte, env *Envelope) error {
	msg := dynamicpb.NewMessage(envelopeDescriptor)
	if err := proto.Unmarshal(data, msg); err != nil {
		return err
	}
	env.fromProto(msg)
	return nil
}

type wireProtobufJSON struct {
	marshalOptions   protojson.MarshalOptions
	unmarshalOptions protojson.UnmarshalOptions
}

var _ WireFormat = (*wireProtobufJSON)(nil)

func (w *wireProtobufJSON) Name() string { return FormatNameJSON }

func (w *wireProtobufJSON) Marshal(env *Envelope) ([]byte, error) {
	return w.marshalOptions.Marshal(env.toProto())
}

func (w *wireProtobufJSON) Unmarshal(data []byte, env *Envelope) error {
	msg := dynamicpb.NewMessage(envelopeDescriptor)
	if err := w.unmarshalOptions.Unmarshal(data, msg); err != nil {
		return err
	}
	env.fromProto(msg)
	return nil
}

var (
	binaryFormat WireFormat = &wireProtobufBinary{
		// Deterministic output keeps equal envelopes byte-identical.
		marshalOptions: proto.MarshalOptions{Deterministic: true},
	}
	jsonFormat WireFormat = &wireProtobufJSON{
		marshalOptions:   protojson.MarshalOptions{UseProtoNames: false},
		unmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
	}
)

// BinaryFormat returns the protocol buffer binary wire format.
func BinaryFormat() WireFormat { return binaryFormat }

// JSONFormat returns the protocol buffer JSON wire format. Byte fields are
// rendered as base64, as the JSON mapping requires.
func JSONFormat() WireFormat { return jsonFormat }

// EnvelopeDescriptor describes the protobuf message envelopes are encoded as.
// Tools that inspect envelopes without this package can build a
// dynamicpb.Message from it.
func EnvelopeDescriptor() protoreflect.MessageDescriptor {
	return envelopeDescriptor
}

func marshalEnvelope(env *Envelope) ([]byte, error) {
	return binaryFormat.Marshal(env)
}

func unmarshalEnvelope(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := binaryFormat.Unmarshal(data, env); err != nil {
		return nil, err
	}
	return env, nil
}

// formatByName looks up a built-in wire format.
func formatByName(name string) (WireFormat, bool) {
	switch name {
	case FormatNameBinary:
		return binaryFormat, true
	case FormatNameJSON:
		return jsonFormat, true
	}
	return nil, false
}
