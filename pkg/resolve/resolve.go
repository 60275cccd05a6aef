// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolve is the address resolver (C3): it parses symbolic
// references of the form "@<content_id>[.<step>]*" and navigates a
// frozen entity tree to the entity, sub-entity, or field value the path
// names (§4.3).
package resolve

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/tree"
)

// Mode is the resolution outcome: what kind of thing the address names.
type Mode int

const (
	ModeEntity Mode = iota
	ModeSubEntity
	ModeFieldValue
)

func (m Mode) String() string {
	switch m {
	case ModeEntity:
		return "entity"
	case ModeSubEntity:
		return "sub_entity"
	case ModeFieldValue:
		return "field_value"
	default:
		return "unknown"
	}
}

// Resolved is what one address resolves to.
type Resolved struct {
	Mode Mode
	// ContentID is the content_id of the entity the address reached:
	// for ModeEntity/ModeSubEntity, the entity itself; for
	// ModeFieldValue, the entity the scalar field was read from (the
	// value itself has no identity of its own, but its source entity
	// does, and §4.5 step 4 requires that source recorded in
	// provenance_map).
	ContentID     string
	RootContentID string
	// Value is the live pointer (entity/sub_entity) or raw scalar
	// (field_value) the address names, taken from a freshly frozen copy.
	Value any
}

// Store is the subset of *store.Store the resolver depends on.
type Store interface {
	RootOf(contentID string) (string, bool)
	GetFrozen(rootContentID string) (*tree.Tree, error)
}

// Resolver resolves addresses against a Store.
type Resolver struct {
	store Store
}

// New returns a Resolver backed by store.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve parses and navigates address, returning a fresh copy of the
// target (P7: resolving an address twice in a row never mutates the
// store and yields an equal result, since each call gets its own
// tree.Clone via GetFrozen).
func (r *Resolver) Resolve(address string) (*Resolved, error) {
	contentID, steps, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	rootID, ok := r.store.RootOf(contentID)
	if !ok {
		return nil, fmt.Errorf("%w: no root known for content_id %s", errors.ErrUnknown, contentID)
	}
	t, err := r.store.GetFrozen(rootID)
	if err != nil {
		return nil, err
	}
	cur := t.Member(contentID)
	if cur == nil {
		return nil, fmt.Errorf("%w: content_id %s not present in root %s", errors.ErrNotFound, contentID, rootID)
	}

	container := "" // a container field named by the previous step
	for i, step := range steps {
		edges := t.EdgesFrom(cur.ContentID)
		field := container
		container = ""

		if child, ok := matchMapping(edges, field, step); ok {
			cur = t.Member(child)
			continue
		}
		if idx, err := strconv.Atoi(step); err == nil {
			if child, ok := matchSequence(edges, field, idx); ok {
				cur = t.Member(child)
				continue
			}
		}
		if child, ok := matchField(edges, step); ok {
			cur = t.Member(child)
			continue
		}

		if i != len(steps)-1 {
			for _, e := range edges {
				if e.Field == step && e.Container != entity.ContainerNone {
					container = step
				}
			}
			if container != "" {
				continue
			}
			return nil, fmt.Errorf("%w: step %q in %q does not reach an entity and is not the final step", errors.ErrBadPath, step, address)
		}
		fv, err := readScalarField(cur.Value, step)
		if err != nil {
			return nil, err
		}
		return &Resolved{Mode: ModeFieldValue, ContentID: cur.ContentID, RootContentID: rootID, Value: fv}, nil
	}

	mode := ModeEntity
	if cur.ContentID != rootID {
		mode = ModeSubEntity
	}
	return &Resolved{Mode: mode, ContentID: cur.ContentID, RootContentID: rootID, Value: cur.Value}, nil
}

// matchMapping is tried first: a mapping key colliding with a field name
// is disambiguated by preferring the mapping (§6's ambiguity note). A
// non-empty field limits the match to that container field's edges.
func matchMapping(edges []entity.Edge, field, step string) (string, bool) {
	for _, e := range edges {
		if e.Container == entity.ContainerMapping && (field == "" || e.Field == field) {
			if k, ok := e.Position.(string); ok && k == step {
				return e.ChildContentID, true
			}
		}
	}
	return "", false
}

func matchSequence(edges []entity.Edge, field string, idx int) (string, bool) {
	for _, e := range edges {
		if (e.Container == entity.ContainerSequence || e.Container == entity.ContainerSet) && (field == "" || e.Field == field) {
			if p, ok := e.Position.(int); ok && p == idx {
				return e.ChildContentID, true
			}
		}
	}
	return "", false
}

func matchField(edges []entity.Edge, step string) (string, bool) {
	for _, e := range edges {
		if e.Container == entity.ContainerNone && e.Field == step {
			return e.ChildContentID, true
		}
	}
	return "", false
}

func readScalarField(value any, step string) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("%w: cannot navigate into non-pointer value for step %q", errors.ErrBadPath, step)
	}
	fv := rv.Elem().FieldByName(exportName(step))
	if !fv.IsValid() || !fv.CanInterface() {
		return nil, fmt.Errorf("%w: no field %q on %s", errors.ErrNotFound, step, rv.Elem().Type())
	}
	return fv.Interface(), nil
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - ('a' - 'A')
	}
	return string(r)
}

// parseAddress splits "@<content_id>[.<step>]*" into its content_id and
// dot-separated steps.
func parseAddress(address string) (string, []string, error) {
	if len(address) == 0 || address[0] != '@' {
		return "", nil, fmt.Errorf("%w: address %q must start with '@'", errors.ErrBadPath, address)
	}
	body := address[1:]
	if body == "" {
		return "", nil, fmt.Errorf("%w: address %q has no content_id", errors.ErrBadPath, address)
	}
	parts := strings.Split(body, ".")
	if parts[0] == "" {
		return "", nil, fmt.Errorf("%w: address %q has no content_id", errors.ErrBadPath, address)
	}
	return parts[0], parts[1:], nil
}
