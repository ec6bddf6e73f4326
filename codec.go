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
	"log/slog"
)

// DefaultMaxDepth bounds how deeply envelopes may nest unless WithMaxDepth
// says otherwise.
const DefaultMaxDepth = 100

// A Codec converts object graphs of registered types to envelopes and back.
// Codecs are immutable and safe for concurrent use; each call keeps its own
// identity bookkeeping.
type Codec struct {
	registry *Registry
	maxDepth int
	logger   *slog.Logger
}

// NewCodec constructs a Codec over the registry. A nil registry means the
// global registry.
func NewCodec(registry *Registry, options ...CodecOption) *Codec {
	if registry == nil {
		registry = globalRegistry
	}
	config := codecConfig{
		MaxDepth: DefaultMaxDepth,
		Logger:   discardLogger,
	}
	for _, opt := range options {
		opt.applyToCodec(&config)
	}
	return &Codec{
		registry: registry,
		maxDepth: config.MaxDepth,
		logger:   config.Logger,
	}
}

// Registry returns the registry the codec resolves types against.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode converts obj, a non-nil pointer to a registered type, into an
// envelope. Objects reachable from obj more than once are encoded once and
// referenced afterwards.
func (c *Codec) Encode(obj any) (*Envelope, error) {
	return newEncoder(c).encode(obj)
}

// Decode reconstructs the object graph described by env. On failure it
// returns a nil object and an *Error naming the failing type and the trail of
// fields leading to it.
func (c *Codec) Decode(env *Envelope) (any, error) {
	if env == nil {
		return nil, errorf(CodeMalformedEnvelope, "envelope is nil")
	}
	obj, err := newDecoder(c).decode(env)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Marshal encodes obj and serializes the envelope in the binary wire format.
func (c *Codec) Marshal(obj any) ([]byte, error) {
	env, err := c.Encode(obj)
	if err != nil {
		return nil, err
	}
	data, err := marshalEnvelope(env)
	if err != nil {
		return nil, errorf(CodeInvalidValue, "marshal envelope: %w", err).withType(env.FullyQualifiedName)
	}
	return data, nil
}

// Unmarshal parses a binary envelope and decodes it.
func (c *Codec) Unmarshal(data []byte) (any, error) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, errorf(CodeMalformedEnvelope, "unmarshal envelope: %w", err)
	}
	return c.Decode(env)
}

// DecodeAs decodes env and asserts that the result is a *T.
func DecodeAs[T any](c *Codec, env *Envelope) (*T, error) {
	obj, err := c.Decode(env)
	if err != nil {
		return nil, err
	}
	typed, ok := obj.(*T)
	if !ok {
		var want *T
		return nil, errorf(CodeInvalidValue, "decoded %T, want %T", obj, want).withType(env.FullyQualifiedName)
	}
	return typed, nil
}

var defaultCodec = NewCodec(globalRegistry)

// Encode encodes obj using the global registry and default options.
func Encode(obj any) (*Envelope, error) {
	return defaultCodec.Encode(obj)
}

// Decode decodes env using the global registry and default options.
func Decode(env *Envelope) (any, error) {
	return defaultCodec.Decode(env)
}
