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

// RemoveEdge structurally drops a child reference from a live parent
// value, used by the executor to reparent a detached entity (§4.6 step 8:
// "remove the entity from its parent's tree structurally").
func RemoveEdge(parentValue any, field string, container entity.ContainerKind, position any) error {
	rv := reflect.ValueOf(parentValue)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("tree: RemoveEdge: parent must be a non-nil pointer")
	}
	fv := rv.Elem().FieldByName(field)
	if !fv.IsValid() {
		return fmt.Errorf("tree: RemoveEdge: no field %q on %s", field, rv.Elem().Type())
	}

	switch container {
	case entity.ContainerNone:
		fv.Set(reflect.Zero(fv.Type()))

	case entity.ContainerSequence, entity.ContainerSet:
		idx, ok := position.(int)
		if !ok || idx < 0 || idx >= fv.Len() {
			return fmt.Errorf("tree: RemoveEdge: index %v out of range for field %q", position, field)
		}
		out := reflect.MakeSlice(fv.Type(), 0, fv.Len()-1)
		for i := 0; i < fv.Len(); i++ {
			if i == idx {
				continue
			}
			out = reflect.Append(out, fv.Index(i))
		}
		fv.Set(out)

	case entity.ContainerMapping:
		key, ok := position.(string)
		if !ok {
			return fmt.Errorf("tree: RemoveEdge: mapping position must be a string, got %v", position)
		}
		fv.SetMapIndex(reflect.ValueOf(key).Convert(fv.Type().Key()), reflect.Value{})
	}
	return nil
}

// FindByPointer returns the content_id of the member in t whose live
// Value is the same pointer as v, if any. Used to correlate a function's
// returned reference back to a dependency tree built before invocation.
func FindByPointer(t *Tree, v any) (string, bool) {
	target := reflect.ValueOf(v)
	if target.Kind() != reflect.Ptr {
		return "", false
	}
	for cid, n := range t.Nodes {
		nv := reflect.ValueOf(n.Value)
		if nv.Kind() == reflect.Ptr && nv.Pointer() == target.Pointer() && nv.Type() == target.Type() {
			return cid, true
		}
	}
	return "", false
}
