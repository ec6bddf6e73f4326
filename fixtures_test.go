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
	"math/rand"
	"testing"
	"time"

	"github.com/openmined/serde"
	"github.com/openmined/serde/internal/assert"
)

const (
	personName = "test.Person"
	petName    = "test.Pet"
)

type Person struct {
	Name    string
	Age     int64
	Height  float64
	Admin   bool
	Visits  uint64
	Born    time.Time
	Tags    []string
	Labels  map[string]string
	Avatar  []byte
	Key     []byte
	Friend  *Person
	Friends []*Person
	Pet     any
}

type Pet struct {
	Name  string
	Owner *Person
}

func personFields() []serde.Field[Person] {
	return []serde.Field[Person]{
		serde.String("name", func(p *Person) string { return p.Name }, func(p *Person, v string) { p.Name = v }),
		serde.Int("age", func(p *Person) int64 { return p.Age }, func(p *Person, v int64) { p.Age = v }),
		serde.Float("height", func(p *Person) float64 { return p.Height }, func(p *Person, v float64) { p.Height = v }),
		serde.Bool("admin", func(p *Person) bool { return p.Admin }, func(p *Person, v bool) { p.Admin = v }),
		serde.Uint("visits", func(p *Person) uint64 { return p.Visits }, func(p *Person, v uint64) { p.Visits = v }),
		serde.Time("born", func(p *Person) time.Time { return p.Born }, func(p *Person, v time.Time) { p.Born = v }),
		serde.Strings("tags", func(p *Person) []string { return p.Tags }, func(p *Person, v []string) { p.Tags = v }),
		serde.StringMap(
			"labels",
			func(p *Person) map[string]string { return p.Labels },
			func(p *Person, v map[string]string) { p.Labels = v },
		),
		serde.Blob("avatar", func(p *Person) []byte { return p.Avatar }, func(p *Person, v []byte) { p.Avatar = v }),
		serde.Bytes("key", func(p *Person) []byte { return p.Key }, func(p *Person, v []byte) { p.Key = v }),
		serde.Ref("friend", func(p *Person) *Person { return p.Friend }, func(p *Person, v *Person) { p.Friend = v }),
		serde.Refs(
			"friends",
			func(p *Person) []*Person { return p.Friends },
			func(p *Person, v []*Person) { p.Friends = v },
		),
		serde.Object("pet", func(p *Person) any { return p.Pet }, func(p *Person, v any) { p.Pet = v }),
	}
}

func petFields() []serde.Field[Pet] {
	return []serde.Field[Pet]{
		serde.String("name", func(p *Pet) string { return p.Name }, func(p *Pet, v string) { p.Name = v }),
		serde.Ref("owner", func(p *Pet) *Person { return p.Owner }, func(p *Pet, v *Person) { p.Owner = v }),
	}
}

// newTestRegistry returns a frozen registry holding Person and Pet.
func newTestRegistry(tb testing.TB) *serde.Registry {
	tb.Helper()
	registry := serde.NewRegistry()
	assert.Nil(tb, serde.Register(registry, personName, nil, personFields()...))
	assert.Nil(tb, serde.Register(registry, petName, nil, petFields()...))
	registry.Freeze()
	return registry
}

func newTestCodec(tb testing.TB, options ...serde.CodecOption) *serde.Codec {
	tb.Helper()
	return serde.NewCodec(newTestRegistry(tb), options...)
}

// newAlice builds a graph with every field kind set, a shared friend, and a
// cycle through the pet's owner.
func newAlice() *Person {
	alice := &Person{
		Name:   "alice",
		Age:    -42,
		Height: 1.68,
		Admin:  true,
		Visits: 1 << 40,
		Born:   time.Date(1990, time.March, 4, 5, 6, 7, 8, time.UTC),
		Tags:   []string{"a", "", "long tag"},
		Labels: map[string]string{"team": "core", "": "empty key"},
		Avatar: []byte{0x89, 'P', 'N', 'G'},
		Key:    []byte("secret"),
	}
	bob := &Person{Name: "bob", Friend: alice}
	alice.Friend = bob
	alice.Friends = []*Person{bob, nil, alice}
	alice.Pet = &Pet{Name: "rex", Owner: alice}
	return alice
}

// randomPerson builds a random graph of up to size people, with random
// sharing and cycles.
func randomPerson(rng *rand.Rand, size int) *Person {
	people := make([]*Person, 1+rng.Intn(size))
	for i := range people {
		people[i] = &Person{
			Name:   randomString(rng),
			Age:    rng.Int63() - rng.Int63(),
			Height: rng.NormFloat64(),
			Admin:  rng.Intn(2) == 1,
			Visits: rng.Uint64(),
			Born:   time.Unix(rng.Int63n(1<<34)-(1<<33), rng.Int63n(int64(time.Second))).UTC(),
		}
		if rng.Intn(2) == 1 {
			people[i].Avatar = []byte(randomString(rng))
		}
		for j := rng.Intn(3); j > 0; j-- {
			people[i].Tags = append(people[i].Tags, randomString(rng))
		}
		if rng.Intn(3) == 0 {
			people[i].Labels = map[string]string{randomString(rng): randomString(rng)}
		}
	}
	for _, p := range people {
		if rng.Intn(2) == 1 {
			p.Friend = people[rng.Intn(len(people))]
		}
		for j := rng.Intn(3); j > 0; j-- {
			p.Friends = append(p.Friends, people[rng.Intn(len(people))])
		}
		if rng.Intn(4) == 0 {
			p.Pet = &Pet{Name: randomString(rng), Owner: people[rng.Intn(len(people))]}
		}
	}
	return people[0]
}

func randomString(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzäöü ☃"
	runes := []rune(alphabet)
	out := make([]rune, rng.Intn(12))
	for i := range out {
		out[i] = runes[rng.Intn(len(runes))]
	}
	return string(out)
}

// removeField drops name from env, keeping names and data aligned.
func removeField(env *serde.Envelope, name string) {
	for i, n := range env.FieldsName {
		if n == name {
			env.FieldsName = append(env.FieldsName[:i:i], env.FieldsName[i+1:]...)
			env.FieldsData = append(env.FieldsData[:i:i], env.FieldsData[i+1:]...)
			return
		}
	}
}

// setField overwrites the bytes stored under name.
func setField(env *serde.Envelope, name string, data []byte) {
	for i, n := range env.FieldsName {
		if n == name {
			env.FieldsData[i] = data
			return
		}
	}
}

// editNested unmarshals the envelope nested in field name, applies edit, and
// stores the result back.
func editNested(tb testing.TB, env *serde.Envelope, name string, edit func(*serde.Envelope)) {
	tb.Helper()
	data, ok := env.Field(name)
	assert.True(tb, ok, assert.Sprintf("field %q missing", name))
	var nested serde.Envelope
	assert.Nil(tb, serde.BinaryFormat().Unmarshal(data, &nested))
	edit(&nested)
	data, err := serde.BinaryFormat().Marshal(&nested)
	assert.Nil(tb, err)
	setField(env, name, data)
}
