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

package assert

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

type node struct {
	Name     string
	Children []*node
	Parent   *node
}

func TestAssertions(t *testing.T) {
	t.Parallel()

	t.Run("equal", func(t *testing.T) {
		t.Parallel()
		Equal(t, 1, 1, Sprintf("%d", 1))
		NotEqual(t, 1, 2)
	})

	t.Run("empty equals nil", func(t *testing.T) {
		t.Parallel()
		Equal(t, []string{}, nil)
		Equal(t, map[string]string{}, nil)
		Equal(t, &node{Name: "a", Children: []*node{}}, &node{Name: "a"})
	})

	t.Run("cyclic", func(t *testing.T) {
		t.Parallel()
		build := func() *node {
			root := &node{Name: "root"}
			root.Children = []*node{{Name: "leaf", Parent: root}}
			return root
		}
		Equal(t, build(), build())
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		Nil(t, nil)
		Nil(t, (*chan int)(nil))
		Nil(t, (*func())(nil))
		Nil(t, (*map[int]int)(nil))
		Nil(t, (*node)(nil))
		Nil(t, (*[]int)(nil))

		NotNil(t, make(chan int))
		NotNil(t, func() {})
		NotNil(t, any(1))
		NotNil(t, make(map[int]int))
		NotNil(t, &node{})
		NotNil(t, make([]int, 0))

		NotNil(t, "foo")
		NotNil(t, 0)
		NotNil(t, false)
		NotNil(t, node{})
	})

	t.Run("zero", func(t *testing.T) {
		t.Parallel()
		var n node
		Zero(t, n)
		var null *node
		Zero(t, null)
		var s []int
		Zero(t, s)
		var m map[string]string
		Zero(t, m)
		NotZero(t, 3)
	})

	t.Run("same", func(t *testing.T) {
		t.Parallel()
		n := &node{}
		Same(t, n, n)
		Len(t, []int{1, 2}, 2)
	})

	t.Run("error chain", func(t *testing.T) {
		t.Parallel()
		want := errors.New("base error")
		ErrorIs(t, fmt.Errorf("context: %w", want), want)
		pathErr := ErrorAs[*fs.PathError](t, fmt.Errorf("context: %w", &fs.PathError{Op: "open"}))
		Equal(t, pathErr.Op, "open")
	})

	t.Run("strings", func(t *testing.T) {
		t.Parallel()
		Match(t, "foobar", `^foo`)
		Contains(t, "foobar", "oba")
	})

	t.Run("panics", func(t *testing.T) {
		t.Parallel()
		Panics(t, func() { panic("testing") })
	})
}
