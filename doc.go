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

// Package serde encodes graphs of Go objects, including cyclic ones, into
// flat RecursiveSerde envelopes and reconstructs them on the other side.
//
// Types take part by registering a fully-qualified name, a constructor, and
// an ordered table of fields with a Registry. Each field's Route decides
// where its bytes live: primitive values are stored inline, nested objects
// are encoded as envelopes of their own, and blobs are set aside in the
// envelope's NonrecursiveBlob list. Registries are filled at startup and
// then frozen, after which lookups take no locks.
//
// A Codec turns objects into envelopes and back. Objects reachable more than
// once are encoded once and referenced by id afterwards, so identity
// survives the round trip. Decoding failures are reported as an *Error
// carrying a Code, the failing type, and the path of fields that led to it.
//
// For transport, envelopes are serialized in a WireFormat (protobuf binary or
// protobuf JSON) and length-prefixed by FrameWriter and FrameReader. Handler
// and Client exchange single frames over HTTP.
package serde

// Version is the semantic version of the serde module.
const Version = "0.1.0"
