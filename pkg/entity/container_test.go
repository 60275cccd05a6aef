// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package entity

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type containerTestChild struct{ Name string }

type containerTestParent struct {
	Single   *containerTestChild
	Seq      []*containerTestChild
	Mapping  map[string]*containerTestChild
	Grouping Set[*containerTestChild]
	Scalar   string
}

func TestClassifyField_AllContainerShapes(t *testing.T) {
	require.NoError(t, Declare[containerTestChild](KindEntity))
	typ := reflect.TypeOf(containerTestParent{})

	isEntity, container, elem := ClassifyField(typ.Field(0).Type)
	assert.True(t, isEntity)
	assert.Equal(t, ContainerNone, container)
	assert.Equal(t, reflect.TypeOf(&containerTestChild{}), elem)

	isEntity, container, elem = ClassifyField(typ.Field(1).Type)
	assert.True(t, isEntity)
	assert.Equal(t, ContainerSequence, container)
	assert.Equal(t, reflect.TypeOf(&containerTestChild{}), elem)

	isEntity, container, _ = ClassifyField(typ.Field(2).Type)
	assert.True(t, isEntity)
	assert.Equal(t, ContainerMapping, container)

	isEntity, container, _ = ClassifyField(typ.Field(3).Type)
	assert.True(t, isEntity)
	assert.Equal(t, ContainerSet, container)

	isEntity, container, elem = ClassifyField(typ.Field(4).Type)
	assert.False(t, isEntity)
	assert.Equal(t, ContainerNone, container)
	assert.Nil(t, elem)
}

func TestIsSet(t *testing.T) {
	assert.True(t, IsSet(reflect.TypeOf(Set[*containerTestChild]{})))
	assert.False(t, IsSet(reflect.TypeOf([]*containerTestChild{})))
}
