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
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// A Registry maps fully-qualified type names to the classes that encode and
// reconstruct them.
//
// Registries have an explicit two-phase lifecycle. During initialization,
// types are added with Register and Alias. Freeze then ends the mutable
// phase: further registrations fail with CodeRegistryFrozen, and lookups no
// longer take a lock, so a frozen registry may be read from any number of
// goroutines. Lookups before Freeze are safe too, but serialize with
// registrations.
type Registry struct {
	mu      sync.Mutex
	frozen  atomic.Bool
	classes map[string]*class
	byType  map[reflect.Type]*class
	aliases map[string]string
}

// class is the type-erased registration of one Go type.
type class struct {
	name   string
	goType reflect.Type
	newFn  func() any
	isNil  func(any) bool
	fields []fieldDescriptor
}

func (c *class) owns(obj any) bool {
	return reflect.TypeOf(obj) == c.goType
}

var globalRegistry = NewRegistry()

// GlobalRegistry returns the process-wide registry used by the package-level
// Encode and Decode functions.
func GlobalRegistry() *Registry {
	return globalRegistry
}

// NewRegistry constructs an empty, mutable Registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*class),
		byType:  make(map[reflect.Type]*class),
		aliases: make(map[string]string),
	}
}

// Register adds the type *T to the registry under the fully-qualified name,
// with fields encoded in the order given. newFn constructs the empty instance
// that decoding fills in; if it's nil, new(T) is used.
//
// Registering a name twice, or the same Go type under a second name, fails
// with CodeAlreadyRegistered. Field names must be non-empty, unique, and must
// not start with the reserved "__" prefix.
//
// Go doesn't support type parameters on methods, so this is a package-level
// generic.
func Register[T any](r *Registry, name string, newFn func() *T, fields ...Field[T]) error {
	if r == nil {
		return errorf(CodeInvalidSchema, "registry is nil")
	}
	if name == "" {
		return errorf(CodeInvalidSchema, "type name is empty")
	}
	if newFn == nil {
		newFn = func() *T { return new(T) }
	}
	seen := make(map[string]struct{}, len(fields))
	descriptors := make([]fieldDescriptor, 0, len(fields))
	for i, f := range fields {
		switch {
		case f.name == "":
			return errorf(CodeInvalidSchema, "field %d has no name", i).withType(name)
		case isReserved(f.name):
			return errorf(CodeInvalidSchema, "field name %q uses reserved prefix %q", f.name, reservedPrefix).withType(name)
		case f.encode == nil || f.decode == nil:
			return errorf(CodeInvalidSchema, "field %q wasn't built by a field constructor", f.name).withType(name)
		}
		if _, dup := seen[f.name]; dup {
			return errorf(CodeInvalidSchema, "duplicate field name %q", f.name).withType(name)
		}
		seen[f.name] = struct{}{}
		descriptors = append(descriptors, f.erase())
	}
	cls := &class{
		name:   name,
		goType: reflect.TypeOf((*T)(nil)),
		newFn:  func() any { return newFn() },
		isNil:  func(obj any) bool { return obj.(*T) == nil },
		fields: descriptors,
	}
	return r.add(cls)
}

// MustRegister is like Register, but panics on error. It's meant for
// registrations in init functions.
func MustRegister[T any](r *Registry, name string, newFn func() *T, fields ...Field[T]) {
	if err := Register(r, name, newFn, fields...); err != nil {
		panic(err)
	}
}

func (r *Registry) add(cls *class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return errorf(CodeRegistryFrozen, "can't register after Freeze").withType(cls.name)
	}
	if _, found := r.classes[cls.name]; found {
		return errorf(CodeAlreadyRegistered, "type name already registered").withType(cls.name)
	}
	if _, found := r.aliases[cls.name]; found {
		return errorf(CodeAlreadyRegistered, "type name already registered as an alias").withType(cls.name)
	}
	if existing, found := r.byType[cls.goType]; found {
		return errorf(CodeAlreadyRegistered, "%v already registered as %q", cls.goType, existing.name).withType(cls.name)
	}
	r.classes[cls.name] = cls
	r.byType[cls.goType] = cls
	return nil
}

// Alias makes envelopes named alias decode as the registered type name,
// letting receivers accept a type under its previous name after a rename.
// Encoding always writes the canonical name.
func (r *Registry) Alias(alias, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return errorf(CodeRegistryFrozen, "can't alias after Freeze").withType(alias)
	}
	if alias == "" {
		return errorf(CodeInvalidSchema, "alias is empty").withType(name)
	}
	if _, found := r.classes[alias]; found {
		return errorf(CodeAlreadyRegistered, "alias names a registered type").withType(alias)
	}
	if _, found := r.aliases[alias]; found {
		return errorf(CodeAlreadyRegistered, "alias already defined").withType(alias)
	}
	if _, found := r.classes[name]; !found {
		return errorf(CodeUnregisteredType, "alias target isn't registered").withType(name)
	}
	r.aliases[alias] = name
	return nil
}

// Freeze ends the registration phase. It's idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Has reports whether name, or an alias of it, is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names returns the registered type names in sorted order, without aliases.
func (r *Registry) Names() []string {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookup resolves a fully-qualified name, following aliases.
func (r *Registry) lookup(name string) (*class, bool) {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	if cls, ok := r.classes[name]; ok {
		return cls, true
	}
	if target, ok := r.aliases[name]; ok {
		cls, ok := r.classes[target]
		return cls, ok
	}
	return nil, false
}

// classOf finds the class registered for obj's dynamic type.
func (r *Registry) classOf(obj any) (*class, bool) {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	cls, ok := r.byType[reflect.TypeOf(obj)]
	return cls, ok
}
