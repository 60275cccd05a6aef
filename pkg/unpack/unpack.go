// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package unpack is the unpacker (C7): given a function's raw return
// values and its output descriptor, it produces the primary entities,
// an optional container entity, and shape metadata needed to satisfy
// round-trip law R2 (§4.7, B1-B7).
package unpack

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/signature"
)

// Container is the optional entity created for B2-B6 returns and for B7
// returns with two or more non-entity slots, carrying
// enough shape metadata for a caller that declared unpack=false to
// retrieve the original return shape (R2).
type Container struct {
	Pattern             string
	Keys                []string
	Length              int
	ExpectedEntityCount int
	Scalars             map[string]string
}

func init() {
	_ = entity.Declare[Container](entity.KindEntity)
}

// Primary is one entity produced by unpacking, before the executor
// assigns output_index/sibling_ids and classifies it.
type Primary struct {
	Value any
}

// ShapeMeta mirrors Container's fields for callers that only need the
// shape, not a committed entity.
type ShapeMeta struct {
	Pattern signature.OutputPattern
	Keys    []string
	Length  int
}

// Result is what Unpack hands back to the executor.
type Result struct {
	Primaries []Primary
	Container *Container
	Shape     ShapeMeta
}

// Unpack dispatches on desc.Pattern. outs holds the function's return
// values with any trailing error already stripped by the caller.
func Unpack(desc *signature.OutputDescriptor, outs []reflect.Value) (*Result, error) {
	switch desc.Pattern {
	case signature.B1SingleEntity:
		return &Result{
			Primaries: []Primary{{Value: outs[0].Interface()}},
			Shape:     ShapeMeta{Pattern: desc.Pattern},
		}, nil

	case signature.B2FixedTuple:
		primaries := make([]Primary, len(outs))
		keys := make([]string, len(outs))
		for i, o := range outs {
			primaries[i] = Primary{Value: o.Interface()}
			keys[i] = strconv.Itoa(i)
		}
		return &Result{
			Primaries: primaries,
			Container: &Container{Pattern: desc.Pattern.String(), Keys: keys, Length: len(outs), ExpectedEntityCount: len(outs)},
			Shape:     ShapeMeta{Pattern: desc.Pattern, Keys: keys, Length: len(outs)},
		}, nil

	case signature.B3Sequence:
		sv := outs[0]
		n := sv.Len()
		var primaries []Primary
		for i := 0; i < n; i++ {
			primaries = append(primaries, Primary{Value: sv.Index(i).Interface()})
		}
		return &Result{
			Primaries: primaries,
			Container: &Container{Pattern: desc.Pattern.String(), Length: n, ExpectedEntityCount: n},
			Shape:     ShapeMeta{Pattern: desc.Pattern, Length: n},
		}, nil

	case signature.B4Mapping:
		mv := outs[0]
		keys := mv.MapKeys()
		keyStrs := make([]string, 0, len(keys))
		for _, k := range keys {
			keyStrs = append(keyStrs, k.String())
		}
		sort.Strings(keyStrs)
		var primaries []Primary
		for _, ks := range keyStrs {
			elem := mv.MapIndex(reflect.ValueOf(ks).Convert(mv.Type().Key()))
			primaries = append(primaries, Primary{Value: elem.Interface()})
		}
		return &Result{
			Primaries: primaries,
			Container: &Container{Pattern: desc.Pattern.String(), Keys: keyStrs, ExpectedEntityCount: len(keyStrs)},
			Shape:     ShapeMeta{Pattern: desc.Pattern, Keys: keyStrs, Length: len(keyStrs)},
		}, nil

	case signature.B5Mixed:
		keys := make([]string, len(outs))
		scalars := map[string]string{}
		var primaries []Primary
		for i, o := range outs {
			keys[i] = strconv.Itoa(i)
			if desc.Slots[i].IsEntity {
				primaries = append(primaries, Primary{Value: o.Interface()})
			} else {
				scalars[keys[i]] = fmt.Sprint(o.Interface())
			}
		}
		return &Result{
			Primaries: primaries,
			Container: &Container{Pattern: desc.Pattern.String(), Keys: keys, Length: len(outs), ExpectedEntityCount: len(primaries), Scalars: scalars},
			Shape:     ShapeMeta{Pattern: desc.Pattern, Keys: keys, Length: len(outs)},
		}, nil

	case signature.B6Nested:
		return unpackNested(desc, outs[0])

	case signature.B7NonEntity:
		if len(outs) == 1 {
			return unpackWrapped(desc, outs[0])
		}
		return unpackWrappedMulti(desc, outs)
	}
	return nil, fmt.Errorf("unpack: unsupported output pattern %v", desc.Pattern)
}

// unpackNested walks a bounded container-of-container return value
// (slice-of-slice, slice-of-map, map-of-slice, map-of-map), collecting
// leaf entities in traversal order along with their reconstructed
// "address within container" path (e.g. "[2][k]").
func unpackNested(desc *signature.OutputDescriptor, v reflect.Value) (*Result, error) {
	var primaries []Primary
	var paths []string

	var walk func(val reflect.Value, prefix string)
	walk = func(val reflect.Value, prefix string) {
		switch val.Kind() {
		case reflect.Slice:
			for i := 0; i < val.Len(); i++ {
				walk(val.Index(i), fmt.Sprintf("%s[%d]", prefix, i))
			}
		case reflect.Map:
			keys := val.MapKeys()
			keyStrs := make([]string, 0, len(keys))
			for _, k := range keys {
				keyStrs = append(keyStrs, k.String())
			}
			sort.Strings(keyStrs)
			for _, ks := range keyStrs {
				walk(val.MapIndex(reflect.ValueOf(ks).Convert(val.Type().Key())), fmt.Sprintf("%s[%s]", prefix, ks))
			}
		default:
			if val.IsValid() && !(val.Kind() == reflect.Ptr && val.IsNil()) {
				primaries = append(primaries, Primary{Value: val.Interface()})
				paths = append(paths, prefix)
			}
		}
	}
	walk(v, "")

	return &Result{
		Primaries: primaries,
		Container: &Container{Pattern: desc.Pattern.String(), Keys: paths, Length: len(primaries), ExpectedEntityCount: len(primaries)},
		Shape:     ShapeMeta{Pattern: desc.Pattern, Keys: paths, Length: len(primaries)},
	}, nil
}

var wrapperCache sync.Map // reflect.Type -> reflect.Type

// wrapperType synthesizes (and caches) the Go struct type used to wrap a
// non-entity B7 return: one field per exported field of a struct return,
// or a single "Result" field for anything else.
func wrapperType(retType reflect.Type) reflect.Type {
	if v, ok := wrapperCache.Load(retType); ok {
		return v.(reflect.Type)
	}
	var fields []reflect.StructField
	if retType.Kind() == reflect.Struct {
		for i := 0; i < retType.NumField(); i++ {
			sf := retType.Field(i)
			if sf.PkgPath != "" {
				continue
			}
			fields = append(fields, reflect.StructField{Name: sf.Name, Type: sf.Type})
		}
	}
	if len(fields) == 0 {
		fields = []reflect.StructField{{Name: "Result", Type: retType}}
	}
	t := reflect.StructOf(fields)
	wrapperCache.Store(retType, t)
	return t
}

// unpackWrapped builds the single freshly-created wrapper entity for a
// B7 return: a structured value is transposed field-by-field, anything
// else becomes the wrapper's single "Result" field.
func unpackWrapped(desc *signature.OutputDescriptor, out reflect.Value) (*Result, error) {
	retType := out.Type()
	wt := wrapperType(retType)
	ptr := reflect.New(wt)

	if retType.Kind() == reflect.Struct && wt.Field(0).Name != "Result" {
		for i := 0; i < wt.NumField(); i++ {
			if fv := out.FieldByName(wt.Field(i).Name); fv.IsValid() {
				ptr.Elem().Field(i).Set(fv)
			}
		}
	} else {
		ptr.Elem().Field(0).Set(out)
	}

	if err := entity.DeclareType(wt, entity.KindEntity); err != nil {
		return nil, fmt.Errorf("unpack: registering wrapper type: %w", err)
	}

	return &Result{
		Primaries: []Primary{{Value: ptr.Interface()}},
		Shape:     ShapeMeta{Pattern: desc.Pattern},
	}, nil
}

// unpackWrappedMulti handles a B7 return with two or more non-entity
// slots: each slot is wrapped independently by unpackWrapped, so every
// scalar becomes its own committed entity rather than being folded into
// a shared container's Scalars map.
func unpackWrappedMulti(desc *signature.OutputDescriptor, outs []reflect.Value) (*Result, error) {
	primaries := make([]Primary, len(outs))
	keys := make([]string, len(outs))
	for i, o := range outs {
		wrapped, err := unpackWrapped(&signature.OutputDescriptor{Pattern: desc.Pattern}, o)
		if err != nil {
			return nil, err
		}
		primaries[i] = wrapped.Primaries[0]
		keys[i] = strconv.Itoa(i)
	}
	return &Result{
		Primaries: primaries,
		Container: &Container{Pattern: desc.Pattern.String(), Keys: keys, Length: len(outs), ExpectedEntityCount: len(outs)},
		Shape:     ShapeMeta{Pattern: desc.Pattern, Keys: keys, Length: len(outs)},
	}, nil
}
