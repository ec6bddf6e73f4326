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

package serde_test

import (
	"testing"

	"github.com/openmined/serde"
	"github.com/openmined/serde/internal/assert"
)

func TestRegister(t *testing.T) {
	t.Parallel()
	name := func(p *Pet) string { return p.Name }
	setName := func(p *Pet, v string) { p.Name = v }

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()
		registry := serde.NewRegistry()
		assert.Nil(t, serde.Register(registry, petName, nil, petFields()...))
		err := serde.Register(registry, petName, nil, personFields()...)
		serdeErr := assert.ErrorAs[*serde.Error](t, err)
		assert.Equal(t, serdeErr.Code(), serde.CodeAlreadyRegistered)
		assert.Equal(t, serdeErr.TypeName(), petName)
		// The first registration is untouched.
		assert.Equal(t, registry.Names(), []string{petName})
	})
	t.Run("duplicate go type", func(t *testing.T) {
		t.Parallel()
		registry := serde.NewRegistry()
		assert.Nil(t, serde.Register(registry, petName, nil, petFields()...))
		err := serde.Register(registry, "test.Dog", nil, petFields()...)
		assert.Equal(t, serde.CodeOf(err), serde.CodeAlreadyRegistered)
		assert.False(t, registry.Has("test.Dog"))
	})
	t.Run("frozen", func(t *testing.T) {
		t.Parallel()
		registry := serde.NewRegistry()
		assert.False(t, registry.Frozen())
		registry.Freeze()
		registry.Freeze() // idempotent
		assert.True(t, registry.Frozen())
		err := serde.Register(registry, petName, nil, petFields()...)
		assert.Equal(t, serde.CodeOf(err), serde.CodeRegistryFrozen)
		assert.Equal(t, serde.CodeOf(registry.Alias("a", "b")), serde.CodeRegistryFrozen)
		assert.Zero(t, registry.Names())
	})
	t.Run("invalid schemas", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name     string
			typeName string
			fields   []serde.Field[Pet]
		}{
			{name: "empty type name", typeName: "", fields: petFields()},
			{name: "unnamed field", typeName: petName, fields: []serde.Field[Pet]{serde.String("", name, setName)}},
			{name: "reserved id", typeName: petName, fields: []serde.Field[Pet]{serde.String("__id__", name, setName)}},
			{name: "reserved prefix", typeName: petName, fields: []serde.Field[Pet]{serde.String("__meta", name, setName)}},
			{
				name:     "duplicate field",
				typeName: petName,
				fields:   []serde.Field[Pet]{serde.String("name", name, setName), serde.String("name", name, setName)},
			},
			{name: "zero field", typeName: petName, fields: []serde.Field[Pet]{{}}},
		}
		for _, test := range tests {
			registry := serde.NewRegistry()
			err := serde.Register(registry, test.typeName, nil, test.fields...)
			assert.Equal(t, serde.CodeOf(err), serde.CodeInvalidSchema, assert.Sprintf("%s: %v", test.name, err))
			assert.Zero(t, registry.Names(), assert.Sprintf("%s", test.name))
		}
		assert.Equal(t, serde.CodeOf(serde.Register[Pet](nil, petName, nil)), serde.CodeInvalidSchema)
	})
	t.Run("must register", func(t *testing.T) {
		t.Parallel()
		registry := serde.NewRegistry()
		serde.MustRegister(registry, petName, nil, petFields()...)
		assert.Panics(t, func() {
			serde.MustRegister(registry, petName, nil, petFields()...)
		})
	})
	t.Run("constructor", func(t *testing.T) {
		t.Parallel()
		registry := serde.NewRegistry()
		fields := []serde.Field[Pet]{
			serde.String("name", name, setName),
			// Absent from old envelopes; keeps the constructor's default.
			serde.Ref("owner", func(p *Pet) *Person { return p.Owner }, func(p *Pet, v *Person) { p.Owner = v }).Optional(),
		}
		assert.Nil(t, serde.Register(registry, petName, func() *Pet { return &Pet{Name: "unnamed"} }, fields...))
		assert.Nil(t, serde.Register(registry, personName, nil, personFields()...))
		registry.Freeze()
		codec := serde.NewCodec(registry)
		env := &serde.Envelope{
			FullyQualifiedName: petName,
			FieldsName:         []string{"name"},
			FieldsData:         [][]byte{[]byte("rex")},
		}
		pet, err := serde.DecodeAs[Pet](codec, env)
		assert.Nil(t, err)
		assert.Equal(t, pet, &Pet{Name: "rex"})
		assert.True(t, fields[1].Optional().Route() == serde.RouteNested)
		assert.Equal(t, fields[0].Name(), "name")
	})
}

func TestAliases(t *testing.T) {
	t.Parallel()
	registry := serde.NewRegistry()
	assert.Nil(t, serde.Register(registry, petName, nil, petFields()...))
	assert.Nil(t, registry.Alias("old.Pet", petName))

	assert.Equal(t, serde.CodeOf(registry.Alias("old.Pet", petName)), serde.CodeAlreadyRegistered)
	assert.Equal(t, serde.CodeOf(registry.Alias(petName, petName)), serde.CodeAlreadyRegistered)
	assert.Equal(t, serde.CodeOf(registry.Alias("other.Pet", "missing.Type")), serde.CodeUnregisteredType)
	assert.Equal(t, serde.CodeOf(registry.Alias("", petName)), serde.CodeInvalidSchema)
	// Aliases reserve their name.
	err := serde.Register(registry, "old.Pet", nil, personFields()...)
	assert.Equal(t, serde.CodeOf(err), serde.CodeAlreadyRegistered)

	assert.True(t, registry.Has("old.Pet"))
	assert.True(t, registry.Has(petName))
	assert.False(t, registry.Has("missing.Type"))
	assert.Equal(t, registry.Names(), []string{petName})
}

func TestRoutes(t *testing.T) {
	t.Parallel()
	name := func(p *Person) []byte { return p.Avatar }
	set := func(p *Person, v []byte) { p.Avatar = v }
	assert.Equal(t, serde.Bytes("b", name, set).Route(), serde.RouteData)
	assert.Equal(t, serde.Blob("b", name, set).Route(), serde.RouteBlob)
	assert.Equal(t, serde.RouteBlob.String(), "blob")
	assert.Equal(t, serde.Route(42).String(), "Route(42)")
	for _, f := range personFields() {
		switch f.Name() {
		case "friend", "friends", "pet":
			assert.Equal(t, f.Route(), serde.RouteNested, assert.Sprintf("%s", f.Name()))
		case "avatar":
			assert.Equal(t, f.Route(), serde.RouteBlob)
		default:
			assert.Equal(t, f.Route(), serde.RouteData, assert.Sprintf("%s", f.Name()))
		}
	}
}
