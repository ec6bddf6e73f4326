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
	"errors"
	"fmt"
	"strings"
)

// An Error captures a Code, the fully-qualified name of the type whose
// envelope failed, the trail of field names descended from the outermost
// envelope to the failure, and an underlying Go error.
//
// Nested failures surface to the outermost caller as a single *Error, so the
// offending sub-object can be located from Path without a stack trace. Use
// the standard library's errors.As to extract an *Error from a wrapped chain.
type Error struct {
	code     Code
	typeName string
	path     []string
	err      error
}

// NewError annotates any Go error with a Code.
func NewError(c Code, underlying error) *Error {
	return &Error{code: c, err: underlying}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.code.String())
	if e.typeName != "" || len(e.path) > 0 {
		b.WriteString(" [")
		b.WriteString(e.typeName)
		if len(e.path) > 0 {
			if e.typeName != "" {
				b.WriteString(" ")
			}
			b.WriteString("at ")
			b.WriteString(strings.Join(e.path, "."))
		}
		b.WriteString("]")
	}
	if e.err != nil {
		if text := e.err.Error(); text != "" {
			b.WriteString(": ")
			b.WriteString(text)
		}
	}
	return b.String()
}

// Unwrap implements errors.Wrapper, which allows errors.Is and errors.As
// access to the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the error's code.
func (e *Error) Code() Code {
	return e.code
}

// TypeName returns the fully-qualified name of the innermost type involved in
// the failure, if known.
func (e *Error) TypeName() string {
	return e.typeName
}

// Path returns the field names descended from the outermost object to the
// failure. List elements appear as "name[i]". The returned slice is a copy.
func (e *Error) Path() []string {
	if len(e.path) == 0 {
		return nil
	}
	return append([]string(nil), e.path...)
}

// CodeOf returns the error's code if it is or wraps an *Error and CodeUnknown
// otherwise.
func CodeOf(err error) Code {
	if serdeErr, ok := asError(err); ok {
		return serdeErr.Code()
	}
	return CodeUnknown
}

// errorf calls fmt.Errorf with the supplied template and arguments, then wraps
// the resulting error.
func errorf(c Code, template string, args ...any) *Error {
	return NewError(c, fmt.Errorf(template, args...))
}

// asError uses errors.As to unwrap any error and look for a serde *Error.
func asError(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}

// withType records the type name unless an inner failure already did.
func (e *Error) withType(name string) *Error {
	if e.typeName == "" {
		e.typeName = name
	}
	return e
}

// descend records that the failure happened below field, in the envelope of
// type typeName. Errors without a code are classified as CodeInvalidValue,
// since they come from decoding a field's bytes.
func descend(err error, field, typeName string) *Error {
	serdeErr, ok := asError(err)
	if !ok {
		serdeErr = NewError(CodeInvalidValue, err)
	}
	if len(serdeErr.path) > 0 && strings.HasPrefix(serdeErr.path[0], "[") {
		serdeErr.path[0] = field + serdeErr.path[0]
	} else {
		serdeErr.path = append([]string{field}, serdeErr.path...)
	}
	return serdeErr.withType(typeName)
}
