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
	"net/http"
	"strconv"
)

var (
	strToCode = map[string]Code{
		"UNKNOWN":                  CodeUnknown,
		"UNREGISTERED_TYPE":        CodeUnregisteredType,
		"MALFORMED_ENVELOPE":       CodeMalformedEnvelope,
		"MISSING_FIELD":            CodeMissingField,
		"RECURSION_LIMIT_EXCEEDED": CodeRecursionLimitExceeded,
		"INVALID_VALUE":            CodeInvalidValue,
		"INVALID_SCHEMA":           CodeInvalidSchema,
		"ALREADY_REGISTERED":       CodeAlreadyRegistered,
		"REGISTRY_FROZEN":          CodeRegistryFrozen,
		"RESOURCE_EXHAUSTED":       CodeResourceExhausted,
		"UNAVAILABLE":              CodeUnavailable,
	}
	codeToHTTP = map[Code]int{
		CodeUnknown:                500,
		CodeUnregisteredType:       422,
		CodeMalformedEnvelope:      400,
		CodeMissingField:           422,
		CodeRecursionLimitExceeded: 422,
		CodeInvalidValue:           422,
		CodeInvalidSchema:          500,
		CodeAlreadyRegistered:      500,
		CodeRegistryFrozen:         500,
		CodeResourceExhausted:      413,
		CodeUnavailable:            503,
	}
)

// A Code classifies a codec or transport failure. None of the codes are
// retried by this package; retry policy belongs to the caller.
type Code uint32

const (
	CodeUnknown                Code = 1  // cause not classified
	CodeUnregisteredType       Code = 2  // fully-qualified name not in the receiver's registry
	CodeMalformedEnvelope      Code = 3  // structural invariant of an envelope or frame violated
	CodeMissingField           Code = 4  // required field absent from the envelope
	CodeRecursionLimitExceeded Code = 5  // object graph nested deeper than the configured limit
	CodeInvalidValue           Code = 6  // field bytes don't decode to the declared kind
	CodeInvalidSchema          Code = 7  // class registration is inconsistent
	CodeAlreadyRegistered      Code = 8  // name or Go type registered twice
	CodeRegistryFrozen         Code = 9  // registration attempted after Freeze
	CodeResourceExhausted      Code = 10 // frame larger than the configured limit
	CodeUnavailable            Code = 11 // transport failure

	minCode Code = CodeUnknown
	maxCode Code = CodeUnavailable
)

// MarshalText implements encoding.TextMarshaler. Codes are marshaled in their
// numeric representations.
func (c Code) MarshalText() ([]byte, error) {
	if c < minCode || c > maxCode {
		return nil, fmt.Errorf("invalid code %v", c)
	}
	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both numeric
// representations (as produced by MarshalText) and upper snake case names
// such as "MISSING_FIELD".
func (c *Code) UnmarshalText(b []byte) error {
	if n, ok := strToCode[string(b)]; ok {
		*c = n
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10 /* base */, 32 /* bitsize */)
	if err != nil {
		return fmt.Errorf("invalid code %q", string(b))
	}
	code := Code(n)
	if code < minCode || code > maxCode {
		return fmt.Errorf("invalid code %v", n)
	}
	*c = code
	return nil
}

func (c Code) http() int {
	if c < minCode || c > maxCode {
		return http.StatusInternalServerError
	}
	return codeToHTTP[c]
}

func (c Code) String() string {
	switch c {
	case CodeUnknown:
		return "Unknown"
	case CodeUnregisteredType:
		return "UnregisteredType"
	case CodeMalformedEnvelope:
		return "MalformedEnvelope"
	case CodeMissingField:
		return "MissingField"
	case CodeRecursionLimitExceeded:
		return "RecursionLimitExceeded"
	case CodeInvalidValue:
		return "InvalidValue"
	case CodeInvalidSchema:
		return "InvalidSchema"
	case CodeAlreadyRegistered:
		return "AlreadyRegistered"
	case CodeRegistryFrozen:
		return "RegistryFrozen"
	case CodeResourceExhausted:
		return "ResourceExhausted"
	case CodeUnavailable:
		return "Unavailable"
	}
	return fmt.Sprintf("Code(%d)", c)
}
