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
	"sort"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
)

// walker carries the mutable state of one Walk call. Node discovery is
// post-order: a node's content_id is only computed once every child's
// content_id is known, so the projection that feeds ComputeContentID can
// embed children by content_id (§4.1's Merkle-style addressing).
type walker struct {
	color       map[uintptr]int
	nodeByPtr   map[uintptr]*entity.Node
	byContentID map[string]*entity.Node
	pathByCID   map[string]string
	order       []string
	edges       []entity.Edge
	seenEdges   map[string]bool
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// Walk walks root — a non-nil pointer to a registered entity or
// configuration struct type — enumerating every reachable member, its
// edges, and its canonical field path (C2, §4.2).
func Walk(root any) (*Tree, error) {
	rv := reflect.ValueOf(root)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("%w: root must be a non-nil pointer to a registered struct", errors.ErrBadPath)
	}
	kind, ok := entity.Lookup(rv.Type().Elem())
	if !ok {
		return nil, fmt.Errorf("%w: type %s is not registered as an entity or configuration kind", errors.ErrUnknown, rv.Type().Elem())
	}

	w := &walker{
		color:       map[uintptr]int{},
		nodeByPtr:   map[uintptr]*entity.Node{},
		byContentID: map[string]*entity.Node{},
		pathByCID:   map[string]string{},
		seenEdges:   map[string]bool{},
	}

	rootID, err := w.visit(rv, kind, "")
	if err != nil {
		return nil, err
	}
	for _, n := range w.byContentID {
		n.RootContentID = rootID
	}

	return &Tree{
		RootContentID: rootID,
		Nodes:         w.byContentID,
		Edges:         w.edges,
		Paths:         w.pathByCID,
		Order:         w.order,
	}, nil
}

// visit processes one pointer-to-struct value and returns its content_id.
func (w *walker) visit(rv reflect.Value, kind entity.Kind, path string) (string, error) {
	ptr := rv.Pointer()
	switch w.color[ptr] {
	case colorGray:
		return "", fmt.Errorf("%w: revisited %s while still expanding its ancestor", errors.ErrCyclicGraph, path)
	case colorBlack:
		n := w.nodeByPtr[ptr]
		if _, exists := w.pathByCID[path]; !exists {
			w.pathByCID[path] = n.ContentID
		}
		return n.ContentID, nil
	}
	w.color[ptr] = colorGray

	structVal := rv.Elem()
	structType := structVal.Type()
	typeName := entity.TypeName(structType)

	type localEdge struct {
		field     string
		container entity.ContainerKind
		position  any
		childID   string
	}
	var local []localEdge

	projected := map[string]any{}
	for i := 0; i < structType.NumField(); i++ {
		sf := structType.Field(i)
		if sf.PkgPath != "" {
			continue // unexported: not part of the tracked payload
		}
		fv := structVal.Field(i)

		isEntityField, container, _ := entity.ClassifyField(sf.Type)
		if !isEntityField {
			if fv.CanInterface() {
				projected[sf.Name] = fv.Interface()
			}
			continue
		}
		if kind == entity.KindConfig {
			return "", fmt.Errorf("%w: configuration type %s has entity-typed field %q (nested config-typed fields do not qualify, §4.4)", errors.ErrBadPath, typeName, sf.Name)
		}

		switch container {
		case entity.ContainerNone:
			if fv.IsNil() {
				return "", fmt.Errorf("%w: nil entity reference at field %q", errors.ErrBadPath, sf.Name)
			}
			childKind, _ := entity.Lookup(fv.Type().Elem())
			childID, err := w.visit(fv, childKind, childPath(path, sf.Name, container, nil))
			if err != nil {
				return "", err
			}
			projected[sf.Name] = "@" + childID
			local = append(local, localEdge{sf.Name, container, nil, childID})

		case entity.ContainerSequence, entity.ContainerSet:
			n := fv.Len()
			ids := make([]string, 0, n)
			for idx := 0; idx < n; idx++ {
				elem := fv.Index(idx)
				if elem.IsNil() {
					return "", fmt.Errorf("%w: nil entity reference at %s[%d]", errors.ErrBadPath, sf.Name, idx)
				}
				childKind, _ := entity.Lookup(elem.Type().Elem())
				childID, err := w.visit(elem, childKind, childPath(path, sf.Name, container, idx))
				if err != nil {
					return "", err
				}
				ids = append(ids, "@"+childID)
				local = append(local, localEdge{sf.Name, container, idx, childID})
			}
			projected[sf.Name] = ids

		case entity.ContainerMapping:
			keys := fv.MapKeys()
			keyStrs := make([]string, 0, len(keys))
			for _, k := range keys {
				keyStrs = append(keyStrs, k.String())
			}
			sort.Strings(keyStrs)
			m := map[string]string{}
			for _, ks := range keyStrs {
				elem := fv.MapIndex(reflect.ValueOf(ks).Convert(fv.Type().Key()))
				if elem.IsNil() {
					return "", fmt.Errorf("%w: nil entity reference at %s[%s]", errors.ErrBadPath, sf.Name, ks)
				}
				childKind, _ := entity.Lookup(elem.Type().Elem())
				childID, err := w.visit(elem, childKind, childPath(path, sf.Name, container, ks))
				if err != nil {
					return "", err
				}
				m[ks] = "@" + childID
				local = append(local, localEdge{sf.Name, container, ks, childID})
			}
			projected[sf.Name] = m
		}
	}

	contentID, err := entity.ComputeContentID(typeName, projected)
	if err != nil {
		return "", err
	}

	w.color[ptr] = colorBlack

	node, exists := w.byContentID[contentID]
	if !exists {
		node = &entity.Node{
			ContentID:  contentID,
			InstanceID: entity.NewInstanceID(),
			LineageID:  entity.NewLineageID(),
			TypeName:   typeName,
			Kind:       kind,
			Value:      rv.Interface(),
		}
		w.byContentID[contentID] = node
		w.order = append(w.order, contentID)
	}
	w.nodeByPtr[ptr] = node

	for _, e := range local {
		key := fmt.Sprintf("%s|%s|%v|%s", contentID, e.field, e.position, e.childID)
		if w.seenEdges[key] {
			continue
		}
		w.seenEdges[key] = true
		w.edges = append(w.edges, entity.Edge{
			ParentContentID: contentID,
			Field:           e.field,
			Container:       e.container,
			Position:        e.position,
			ChildContentID:  e.childID,
		})
	}

	if _, exists := w.pathByCID[path]; !exists {
		w.pathByCID[path] = contentID
	}
	return contentID, nil
}

func childPath(parentPath, field string, container entity.ContainerKind, position any) string {
	var seg string
	switch container {
	case entity.ContainerSequence, entity.ContainerSet:
		seg = fmt.Sprintf("%s[%d]", field, position.(int))
	case entity.ContainerMapping:
		seg = fmt.Sprintf("%s[%s]", field, position.(string))
	default:
		seg = field
	}
	if parentPath == "" {
		return seg
	}
	return parentPath + "/" + seg
}
