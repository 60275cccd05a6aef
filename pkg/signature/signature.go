// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package signature is the signature analyzer (C4): it classifies a
// registered function's parameters and return values into the fixed set
// of input/output patterns SPEC_FULL.md §4.4 describes, and caches the
// resulting Descriptor per function so repeated invocations never re-walk
// reflect.Type.
package signature

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
)

// ParamClass classifies one parameter of a registered function.
type ParamClass int

const (
	ParamScalar ParamClass = iota
	ParamEntity
	ParamConfig
)

func (c ParamClass) String() string {
	switch c {
	case ParamEntity:
		return "entity"
	case ParamConfig:
		return "config"
	default:
		return "scalar"
	}
}

// Param describes one classified parameter.
type Param struct {
	Name  string
	Index int // position in the Go function's real parameter list
	Type  reflect.Type
	Class ParamClass
}

// InputPattern is one of the five shapes §4.4 enumerates.
type InputPattern int

const (
	PureBorrowing InputPattern = iota
	SingleEntityDirect
	SingleEntityWithConfig
	MultiEntityComposite
	PureConfig
)

func (p InputPattern) String() string {
	switch p {
	case PureBorrowing:
		return "pure_borrowing"
	case SingleEntityDirect:
		return "single_entity_direct"
	case SingleEntityWithConfig:
		return "single_entity_with_config"
	case MultiEntityComposite:
		return "multi_entity_composite"
	case PureConfig:
		return "pure_config"
	default:
		return "unknown"
	}
}

// OutputPattern is one of the seven return shapes, B1-B7.
type OutputPattern int

const (
	B1SingleEntity OutputPattern = iota + 1
	B2FixedTuple
	B3Sequence
	B4Mapping
	B5Mixed
	B6Nested
	B7NonEntity
)

func (p OutputPattern) String() string {
	switch p {
	case B1SingleEntity:
		return "B1_single_entity"
	case B2FixedTuple:
		return "B2_fixed_tuple"
	case B3Sequence:
		return "B3_sequence"
	case B4Mapping:
		return "B4_mapping"
	case B5Mixed:
		return "B5_mixed"
	case B6Nested:
		return "B6_nested"
	case B7NonEntity:
		return "B7_non_entity"
	default:
		return "unknown"
	}
}

// OutputSlot describes one of the function's non-error return values.
type OutputSlot struct {
	Type     reflect.Type
	IsEntity bool
	// Container is set when Type itself is a slice or map (B3/B4/B6).
	Container entity.ContainerKind
	// ElemIsEntity reports whether Container's immediate element is an
	// entity pointer (false for a B6 container-of-container slot, whose
	// element is itself a container).
	ElemIsEntity bool
}

// OutputDescriptor classifies a function's return values.
type OutputDescriptor struct {
	Pattern             OutputPattern
	SupportsUnpacking   bool
	ExpectedEntityCount int // -1 means not statically known (slice/map)
	Slots               []OutputSlot
	HasError            bool // true if the last declared return is `error`
}

// Descriptor is the cached, per-function analysis result.
type Descriptor struct {
	FuncName     string
	FuncType     reflect.Type
	TakesContext bool
	Params       []Param
	Input        InputPattern
	Output       OutputDescriptor
	// InputEntityType is the synthesized input entity class used by C5 to
	// wrap a heterogeneous call into one composite entity. Built lazily via
	// reflect.StructOf and cached alongside the rest of the descriptor.
	InputEntityType reflect.Type
}

var cache sync.Map // (reflect.Type, paramNames) -> *Descriptor

// Analyze classifies fn (name is used only for error messages and the
// ledger) and caches the result keyed by fn's reflect.Type together with
// paramNames. Two functions with an identical Go type and identical
// paramNames share one cached Descriptor, whose FuncName is the name
// given on the first call.
//
// paramNames names fn's parameters left-to-right, skipping a leading
// context.Context parameter if present: Go's reflect API can recover
// parameter types but never parameter names, so the caller supplies them
// explicitly, mirroring the explicit long-name-per-flag registration the
// teacher's CLI already does with pflag.
func Analyze(name string, fn reflect.Value, paramNames []string) (*Descriptor, error) {
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is not a function", errors.ErrSignature, name)
	}
	ft := fn.Type()

	type cacheKey struct {
		t     reflect.Type
		names string
	}
	key := cacheKey{t: ft, names: fmt.Sprint(paramNames)}
	if v, ok := cache.Load(key); ok {
		return v.(*Descriptor), nil
	}

	d := &Descriptor{FuncName: name, FuncType: ft}

	start := 0
	if ft.NumIn() > 0 && ft.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem() {
		d.TakesContext = true
		start = 1
	}

	declared := ft.NumIn() - start
	if len(paramNames) != declared {
		return nil, fmt.Errorf("%w: %s declares %d parameter(s) but %d name(s) were given",
			errors.ErrSignature, name, declared, len(paramNames))
	}

	for i := 0; i < declared; i++ {
		pt := ft.In(start + i)
		p := Param{Name: paramNames[i], Index: start + i, Type: pt}
		if kind, ok := entity.IsRegisteredPtr(pt); ok {
			if kind == entity.KindConfig {
				p.Class = ParamConfig
			} else {
				p.Class = ParamEntity
			}
		} else {
			p.Class = ParamScalar
		}
		d.Params = append(d.Params, p)
	}
	d.Input = classifyInput(d.Params)

	out, err := classifyOutput(ft)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	d.Output = out

	d.InputEntityType = synthesizeInputType(d.Params)

	cache.Store(key, d)
	return d, nil
}

func classifyInput(params []Param) InputPattern {
	var entityCount, configCount, scalarCount int
	for _, p := range params {
		switch p.Class {
		case ParamEntity:
			entityCount++
		case ParamConfig:
			configCount++
		default:
			scalarCount++
		}
	}
	switch {
	case entityCount == 0:
		if configCount == 0 {
			return PureBorrowing
		}
		return PureConfig
	case entityCount == 1:
		if configCount+scalarCount == 0 {
			return SingleEntityDirect
		}
		return SingleEntityWithConfig
	default:
		return MultiEntityComposite
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func classifyOutput(ft reflect.Type) (OutputDescriptor, error) {
	n := ft.NumOut()
	hasErr := n > 0 && ft.Out(n-1) == errorType
	shapeN := n
	if hasErr {
		shapeN--
	}
	if shapeN == 0 {
		return OutputDescriptor{}, fmt.Errorf("%w: function has no return value to express any output shape", errors.ErrSignature)
	}

	var slots []OutputSlot
	for i := 0; i < shapeN; i++ {
		slots = append(slots, describeSlot(ft.Out(i)))
	}

	out := OutputDescriptor{Slots: slots, HasError: hasErr}

	if shapeN >= 2 {
		allEntity := true
		anyEntity := false
		for _, s := range slots {
			if s.IsEntity {
				anyEntity = true
			} else {
				allEntity = false
			}
		}
		switch {
		case allEntity:
			out.Pattern = B2FixedTuple
			out.ExpectedEntityCount = shapeN
		case !anyEntity:
			// No slot is an entity: B7 per slot, each scalar wrapped as its
			// own committed entity rather than folded into B5Mixed's shared
			// scalar container.
			out.Pattern = B7NonEntity
			out.ExpectedEntityCount = shapeN
		default:
			out.Pattern = B5Mixed
			out.ExpectedEntityCount = countEntitySlots(slots)
		}
		out.SupportsUnpacking = true
		return out, nil
	}

	s := slots[0]
	switch {
	case s.IsEntity:
		out.Pattern = B1SingleEntity
		out.SupportsUnpacking = true
		out.ExpectedEntityCount = 1
	case s.Container == entity.ContainerSequence && s.ElemIsEntity:
		out.Pattern = B3Sequence
		out.SupportsUnpacking = true
		out.ExpectedEntityCount = -1
	case s.Container == entity.ContainerMapping && s.ElemIsEntity:
		out.Pattern = B4Mapping
		out.SupportsUnpacking = true
		out.ExpectedEntityCount = -1
	case s.Container != entity.ContainerNone && !s.ElemIsEntity && isNestedEntityContainer(s.Type):
		out.Pattern = B6Nested
		out.SupportsUnpacking = true
		out.ExpectedEntityCount = -1
	default:
		out.Pattern = B7NonEntity
		out.SupportsUnpacking = false
		out.ExpectedEntityCount = 0
	}
	return out, nil
}

func describeSlot(t reflect.Type) OutputSlot {
	if _, ok := entity.IsRegisteredPtr(t); ok {
		return OutputSlot{Type: t, IsEntity: true}
	}
	switch t.Kind() {
	case reflect.Slice:
		_, elemIsEntity := entity.IsRegisteredPtr(t.Elem())
		return OutputSlot{Type: t, Container: entity.ContainerSequence, ElemIsEntity: elemIsEntity}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			_, elemIsEntity := entity.IsRegisteredPtr(t.Elem())
			return OutputSlot{Type: t, Container: entity.ContainerMapping, ElemIsEntity: elemIsEntity}
		}
	}
	return OutputSlot{Type: t}
}

// isNestedEntityContainer reports whether t is a slice-of-container or
// map-of-container whose innermost element is a registered entity
// pointer (B6: "nested container-of-container").
func isNestedEntityContainer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice:
		return isEntityContainerLeaf(t.Elem())
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return false
		}
		return isEntityContainerLeaf(t.Elem())
	}
	return false
}

func isEntityContainerLeaf(t reflect.Type) bool {
	if _, ok := entity.IsRegisteredPtr(t); ok {
		return true
	}
	switch t.Kind() {
	case reflect.Slice:
		_, ok := entity.IsRegisteredPtr(t.Elem())
		return ok
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return false
		}
		_, ok := entity.IsRegisteredPtr(t.Elem())
		return ok
	}
	return false
}

func countEntitySlots(slots []OutputSlot) int {
	n := 0
	for _, s := range slots {
		if s.IsEntity {
			n++
		}
	}
	return n
}

// synthesizeInputType builds the composite input entity class C5 wraps a
// heterogeneous call into: one exported field per non-config parameter,
// sorted by name so repeated synthesis for the same parameter set is
// cached and yields an identical reflect.Type (reflect.StructOf
// deduplicates structurally-identical definitions on its own, but a
// stable field order keeps generated field names/tags deterministic too).
func synthesizeInputType(params []Param) reflect.Type {
	type named struct {
		name string
		p    Param
	}
	var fields []named
	for _, p := range params {
		if p.Class == ParamConfig {
			continue
		}
		fields = append(fields, named{name: exportName(p.Name), p: p})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	if len(fields) == 0 {
		return nil
	}

	structFields := make([]reflect.StructField, 0, len(fields))
	for _, f := range fields {
		structFields = append(structFields, reflect.StructField{
			Name: f.name,
			Type: f.p.Type,
			Tag:  reflect.StructTag(fmt.Sprintf(`encr:"%s"`, f.p.Name)),
		})
	}
	t := reflect.StructOf(structFields)
	// The composite input is committed via store.PutRoot (pkg/exec step 3),
	// which walks it through pkg/tree — it must be a registered kind like
	// any other entity type, even though no caller ever calls Declare for
	// it directly.
	_ = entity.DeclareType(t, entity.KindEntity)
	return t
}

// exportName capitalizes a parameter name so it is usable as an exported
// Go struct field name (reflect.StructOf rejects unexported fields built
// this way since they would be inaccessible cross-package).
func exportName(name string) string {
	if name == "" {
		return "Field"
	}
	r := []rune(name)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - ('a' - 'A')
	}
	return string(r)
}
