// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package unpack

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/signature"
)

type unpackTestDoc struct {
	Title string
}

func init() {
	if err := entity.Declare[unpackTestDoc](entity.KindEntity); err != nil {
		panic(err)
	}
}

func rv(v any) reflect.Value { return reflect.ValueOf(v) }

func TestUnpack_B1SingleEntity(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B1SingleEntity}
	doc := &unpackTestDoc{Title: "a"}

	res, err := Unpack(desc, []reflect.Value{rv(doc)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 1)
	assert.Same(t, doc, res.Primaries[0].Value)
	assert.Nil(t, res.Container, "B1 never creates a container entity")
}

func TestUnpack_B2FixedTuple(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B2FixedTuple}
	a, b := &unpackTestDoc{Title: "a"}, &unpackTestDoc{Title: "b"}

	res, err := Unpack(desc, []reflect.Value{rv(a), rv(b)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 2)
	require.NotNil(t, res.Container)
	assert.Equal(t, []string{"0", "1"}, res.Container.Keys)
	assert.Equal(t, 2, res.Container.ExpectedEntityCount)
}

func TestUnpack_B3Sequence(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B3Sequence}
	seq := []*unpackTestDoc{{Title: "a"}, {Title: "b"}, {Title: "c"}}

	res, err := Unpack(desc, []reflect.Value{rv(seq)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 3)
	assert.Equal(t, 3, res.Container.Length)
	assert.Equal(t, "b", res.Primaries[1].Value.(*unpackTestDoc).Title)
}

func TestUnpack_B4Mapping(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B4Mapping}
	m := map[string]*unpackTestDoc{"zeta": {Title: "z"}, "alpha": {Title: "a"}}

	res, err := Unpack(desc, []reflect.Value{rv(m)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 2)
	assert.Equal(t, []string{"alpha", "zeta"}, res.Container.Keys, "map keys are sorted for deterministic ordering")
	assert.Equal(t, "a", res.Primaries[0].Value.(*unpackTestDoc).Title)
}

func TestUnpack_B5Mixed(t *testing.T) {
	desc := &signature.OutputDescriptor{
		Pattern: signature.B5Mixed,
		Slots: []signature.OutputSlot{
			{IsEntity: true},
			{IsEntity: false},
		},
	}
	doc := &unpackTestDoc{Title: "a"}

	res, err := Unpack(desc, []reflect.Value{rv(doc), rv(42)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 1, "only the entity-classed slot becomes a primary")
	assert.Equal(t, "42", res.Container.Scalars["1"], "the scalar slot is recorded on the container by its index key")
}

func TestUnpack_B6Nested(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B6Nested}
	nested := [][]*unpackTestDoc{
		{{Title: "a"}, {Title: "b"}},
		{{Title: "c"}},
	}

	res, err := Unpack(desc, []reflect.Value{rv(nested)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 3)
	assert.Equal(t, []string{"[0][0]", "[0][1]", "[1][0]"}, res.Container.Keys)
}

func TestUnpack_B7NonEntityStruct(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B7NonEntity}
	type pair struct {
		Count int
		Total int
	}
	res, err := Unpack(desc, []reflect.Value{rv(pair{Count: 3, Total: 9})})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 1)
	wrapped := reflect.ValueOf(res.Primaries[0].Value).Elem()
	assert.Equal(t, int64(3), wrapped.FieldByName("Count").Int())
	assert.Equal(t, int64(9), wrapped.FieldByName("Total").Int())
}

func TestUnpack_B7NonEntityScalar(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B7NonEntity}
	res, err := Unpack(desc, []reflect.Value{rv(42)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 1)
	wrapped := reflect.ValueOf(res.Primaries[0].Value).Elem()
	assert.Equal(t, int64(42), wrapped.FieldByName("Result").Int(), "a non-struct B7 return wraps into a single Result field")
}

func TestUnpack_B7WrapperTypeIsCachedPerReturnType(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B7NonEntity}
	r1, err := Unpack(desc, []reflect.Value{rv(1)})
	require.NoError(t, err)
	r2, err := Unpack(desc, []reflect.Value{rv(2)})
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(r1.Primaries[0].Value), reflect.TypeOf(r2.Primaries[0].Value))
}

// TestUnpack_B7MultipleScalars covers a function shaped like
// long_words(doc, cfg) (int, int, error): two non-entity return slots
// with zero entity slots, classified B7NonEntity per-slot. Each slot
// must be committed as its own wrapper entity, never folded into a
// shared container's Scalars map the way B5Mixed does.
func TestUnpack_B7MultipleScalars(t *testing.T) {
	desc := &signature.OutputDescriptor{Pattern: signature.B7NonEntity}

	res, err := Unpack(desc, []reflect.Value{rv(7), rv(2)})
	require.NoError(t, err)
	require.Len(t, res.Primaries, 2, "every non-entity slot becomes its own primary, not a shared scalars map")

	first := reflect.ValueOf(res.Primaries[0].Value).Elem()
	second := reflect.ValueOf(res.Primaries[1].Value).Elem()
	assert.Equal(t, int64(7), first.FieldByName("Result").Int())
	assert.Equal(t, int64(2), second.FieldByName("Result").Int())

	require.NotNil(t, res.Container)
	assert.Equal(t, []string{"0", "1"}, res.Container.Keys)
	assert.Equal(t, 2, res.Container.ExpectedEntityCount)
	assert.Nil(t, res.Container.Scalars, "B7 never uses the Scalars map; each slot is its own committed entity")
}
