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
	"fmt"

	"github.com/openmined/serde"
)

// Employee is a self-referential type: managers point at their reports and
// reports point back at their manager.
type Employee struct {
	Name    string
	Manager *Employee
	Reports []*Employee
}

func newEmployeeRegistry() *serde.Registry {
	registry := serde.NewRegistry()
	serde.MustRegister(registry, "example.Employee", nil,
		serde.String("name", func(e *Employee) string { return e.Name }, func(e *Employee, v string) { e.Name = v }),
		serde.Ref("manager", func(e *Employee) *Employee { return e.Manager }, func(e *Employee, v *Employee) { e.Manager = v }),
		serde.Refs("reports", func(e *Employee) []*Employee { return e.Reports }, func(e *Employee, v []*Employee) { e.Reports = v }),
	)
	registry.Freeze()
	return registry
}

func Example() {
	// Registration happens once, at startup. Freezing the registry makes
	// lookups lock-free.
	codec := serde.NewCodec(newEmployeeRegistry())

	boss := &Employee{Name: "ada"}
	boss.Reports = []*Employee{
		{Name: "grace", Manager: boss},
		{Name: "edsger", Manager: boss},
	}
	data, err := codec.Marshal(boss)
	if err != nil {
		fmt.Println(err)
		return
	}
	obj, err := codec.Unmarshal(data)
	if err != nil {
		fmt.Println(err)
		return
	}
	decoded, ok := obj.(*Employee)
	if !ok {
		fmt.Printf("unexpected %T\n", obj)
		return
	}
	fmt.Println(decoded.Name, "manages", decoded.Reports[0].Name, "and", decoded.Reports[1].Name)
	fmt.Println("cycle preserved:", decoded.Reports[1].Manager == decoded)
	// Output:
	// ada manages grace and edsger
	// cycle preserved: true
}

func ExampleCodec_Encode() {
	codec := serde.NewCodec(newEmployeeRegistry())
	boss := &Employee{Name: "ada"}
	boss.Reports = []*Employee{{Name: "grace", Manager: boss}}
	env, err := codec.Encode(boss)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(env.FullyQualifiedName, env.FieldsName)
	reports, _ := env.Field("reports")
	fmt.Println("reports are nested envelopes:", len(reports) > 0)
	// Output:
	// example.Employee [__id__ name manager reports]
	// reports are nested envelopes: true
}
