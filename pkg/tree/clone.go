// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"fmt"
	"reflect"

	"github.com/kraklabs/encr/pkg/entity"
)

// Clone produces a deep, isolated copy of t: every member gets a fresh
// live pointer (and a fresh instance_id), while content_id, lineage_id,
// prior_content_id, and provenance are preserved byte-for-byte. This is
// what backs Store.GetFrozen's "no aliasing with any prior copy" guarantee
// (§4.1, the isolation invariant in §5).
func Clone(t *Tree) (*Tree, error) {
	c := &cloner{
		src:     t,
		cloned:  map[string]reflect.Value{}, // content_id -> *struct
		outMeta: map[string]*entity.Node{},
	}
	if _, err := c.clone(t.RootContentID); err != nil {
		return nil, err
	}
	return &Tree{
		RootContentID: t.RootContentID,
		Nodes:         c.outMeta,
		Edges:         append([]entity.Edge(nil), t.Edges...),
		Paths:         t.Paths,
		Order:         append([]string(nil), t.Order...),
	}, nil
}

type cloner struct {
	src     *Tree
	cloned  map[string]reflect.Value
	outMeta map[string]*entity.Node
}

func (c *cloner) clone(contentID string) (reflect.Value, error) {
	if v, ok := c.cloned[contentID]; ok {
		return v, nil
	}
	srcNode := c.src.Nodes[contentID]
	if srcNode == nil {
		return reflect.Value{}, fmt.Errorf("tree: clone: unknown member %s", contentID)
	}
	srcVal := reflect.ValueOf(srcNode.Value)
	structType := srcVal.Type().Elem()
	newPtr := reflect.New(structType)
	c.cloned[contentID] = newPtr // register before recursing, tolerating shared references

	srcStruct := srcVal.Elem()
	dstStruct := newPtr.Elem()

	edgesByField := map[string][]entity.Edge{}
	for _, e := range c.src.Edges {
		if e.ParentContentID == contentID {
			edgesByField[e.Field] = append(edgesByField[e.Field], e)
		}
	}

	for i := 0; i < structType.NumField(); i++ {
		sf := structType.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		isEntityField, container, _ := entity.ClassifyField(sf.Type)
		if !isEntityField {
			dstStruct.Field(i).Set(deepCopyScalar(srcStruct.Field(i)))
			continue
		}

		fieldEdges := edgesByField[sf.Name]
		switch container {
		case entity.ContainerNone:
			if len(fieldEdges) != 1 {
				return reflect.Value{}, fmt.Errorf("tree: clone: expected exactly one edge for field %s", sf.Name)
			}
			childPtr, err := c.clone(fieldEdges[0].ChildContentID)
			if err != nil {
				return reflect.Value{}, err
			}
			dstStruct.Field(i).Set(childPtr)

		case entity.ContainerSequence, entity.ContainerSet:
			slice := reflect.MakeSlice(sf.Type, len(fieldEdges), len(fieldEdges))
			for _, e := range fieldEdges {
				childPtr, err := c.clone(e.ChildContentID)
				if err != nil {
					return reflect.Value{}, err
				}
				slice.Index(e.Position.(int)).Set(childPtr)
			}
			dstStruct.Field(i).Set(slice)

		case entity.ContainerMapping:
			m := reflect.MakeMapWithSize(sf.Type, len(fieldEdges))
			for _, e := range fieldEdges {
				childPtr, err := c.clone(e.ChildContentID)
				if err != nil {
					return reflect.Value{}, err
				}
				m.SetMapIndex(reflect.ValueOf(e.Position.(string)).Convert(sf.Type.Key()), childPtr)
			}
			dstStruct.Field(i).Set(m)
		}
	}

	c.outMeta[contentID] = srcNode.WithValue(newPtr.Interface())
	return newPtr, nil
}

// deepCopyScalar recursively copies a non-entity field value so that no
// slice, map, or pointer backing array is shared with the source.
func deepCopyScalar(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		np := reflect.New(v.Type().Elem())
		np.Elem().Set(deepCopyScalar(v.Elem()))
		return np
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		ns := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			ns.Index(i).Set(deepCopyScalar(v.Index(i)))
		}
		return ns
	case reflect.Array:
		na := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			na.Index(i).Set(deepCopyScalar(v.Index(i)))
		}
		return na
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		nm := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			nm.SetMapIndex(iter.Key(), deepCopyScalar(iter.Value()))
		}
		return nm
	case reflect.Struct:
		ns := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue // unexported: copied implicitly by value below
			}
			ns.Field(i).Set(deepCopyScalar(v.Field(i)))
		}
		return ns
	default:
		return v
	}
}
