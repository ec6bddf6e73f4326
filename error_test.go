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
	"io"
	"testing"

	"github.com/openmined/serde/internal/assert"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()
	assert.Equal(t, NewError(CodeUnavailable, nil).Error(), CodeUnavailable.String())
	assert.Equal(t, errorf(CodeUnavailable, "").Error(), CodeUnavailable.String())
	assert.Equal(
		t,
		errorf(CodeMissingField, "required field %q is absent", "age").withType("test.Person").Error(),
		`MissingField [test.Person]: required field "age" is absent`,
	)
	nested := descend(errorf(CodeMissingField, "gone"), "friend", "test.Person")
	assert.Equal(t, nested.Error(), "MissingField [test.Person at friend]: gone")
	untyped := &Error{code: CodeInvalidValue, path: []string{"a", "b"}, err: errors.New("bad")}
	assert.Equal(t, untyped.Error(), "InvalidValue [at a.b]: bad")
}

func TestErrorCode(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("another: %w", errorf(CodeUnavailable, "foo"))
	serdeErr, ok := asError(err)
	assert.True(t, ok, assert.Sprintf("extract serde error"))
	assert.Equal(t, serdeErr.Code(), CodeUnavailable)
	assert.ErrorIs(t, NewError(CodeUnavailable, io.ErrUnexpectedEOF), io.ErrUnexpectedEOF)
}

func TestCodeOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CodeOf(nil), CodeUnknown)
	assert.Equal(t, CodeOf(errorf(CodeUnavailable, "foo")), CodeUnavailable)
	assert.Equal(t, CodeOf(fmt.Errorf("wrapped: %w", errorf(CodeMissingField, "foo"))), CodeMissingField)
	assert.Equal(t, CodeOf(errors.New("foo")), CodeUnknown)
}

func TestErrorPath(t *testing.T) {
	t.Parallel()
	t.Run("descend", func(t *testing.T) {
		t.Parallel()
		err := descend(errors.New("bad varint"), "age", "test.Person")
		assert.Equal(t, err.Code(), CodeInvalidValue)
		assert.Equal(t, err.Path(), []string{"age"})
		err = descend(err, "friend", "test.Outer")
		assert.Equal(t, err.Path(), []string{"friend", "age"})
		// The innermost type wins.
		assert.Equal(t, err.TypeName(), "test.Person")
	})
	t.Run("list elements", func(t *testing.T) {
		t.Parallel()
		err := descend(errorf(CodeMissingField, "gone"), "name", "test.Person")
		err = descend(err, elementIndex(2), "")
		err = descend(err, "friends", "test.Person")
		assert.Equal(t, err.Path(), []string{"friends[2]", "name"})
	})
	t.Run("copy", func(t *testing.T) {
		t.Parallel()
		err := descend(errorf(CodeMissingField, "gone"), "a", "")
		path := err.Path()
		path[0] = "mutated"
		assert.Equal(t, err.Path(), []string{"a"})
		assert.Nil(t, errorf(CodeUnknown, "no path").Path())
	})
}
