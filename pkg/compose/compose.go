// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compose is the input composer (C5): it turns one call's
// arguments into a single composite input entity plus the set of
// dependency roots and entity working-copy coordinates the executor
// needs to run the call (§4.5).
package compose

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/resolve"
	"github.com/kraklabs/encr/pkg/signature"
)

// Arg is one resolved call argument before composition.
type Arg struct {
	Value      any
	IsEntity   bool
	ContentID  string // the argument's own content_id, if it is an entity
	DependsOn  string // root content_id the value's tree belongs to, if any
}

// EntityArg is what the executor needs to build a working copy for one
// entity-classed parameter: the member to fetch and the root it lives
// under.
type EntityArg struct {
	ContentID     string
	RootContentID string
}

// Resolver is the subset of *resolve.Resolver compose depends on.
type Resolver interface {
	Resolve(address string) (*resolve.Resolved, error)
}

// Committer is the subset of *store.Store compose depends on: it commits
// the configuration entity in-line, per §4.5 step 3, and roots any
// directly-passed (not yet committed) entity argument so the rest of the
// pipeline has a content_id to work with.
type Committer interface {
	PutRoot(e any) (*entity.Node, error)
}

// Result is what C5 hands to the executor.
type Result struct {
	// Composite is the live, uncommitted composite input value; the
	// executor commits it as step 3 of §4.6.
	Composite any
	// CompositeProvenance mirrors the composite's payload fields: address-
	// sourced fields map to their source content_id, direct entities map
	// to their own content_id, raw scalars are absent (§4.5 step 4).
	CompositeProvenance entity.Provenance

	ConfigValue     any
	ConfigContentID string

	EntityArgs      map[string]EntityArg
	DependencyRoots []string
	ScalarArgs      map[string]any
}

// Compose implements §4.5's algorithm for one call. args is keyed by
// parameter name; values are raw scalars, direct *T entity pointers,
// configuration entities, or "@..." address strings.
func Compose(desc *signature.Descriptor, args map[string]any, r Resolver, c Committer) (*Result, error) {
	resolvedByParam := map[string]Arg{}
	depSet := map[string]struct{}{}

	for _, p := range desc.Params {
		raw, present := args[p.Name]
		if !present {
			continue
		}
		a, err := classifyArg(raw, p.Class, r, c)
		if err != nil {
			return nil, fmt.Errorf("compose: parameter %q: %w", p.Name, err)
		}
		if a.DependsOn != "" {
			depSet[a.DependsOn] = struct{}{}
		}
		resolvedByParam[p.Name] = a
	}

	res := &Result{ScalarArgs: map[string]any{}, EntityArgs: map[string]EntityArg{}}
	for root := range depSet {
		res.DependencyRoots = append(res.DependencyRoots, root)
	}
	sort.Strings(res.DependencyRoots)

	for _, p := range desc.Params {
		a, ok := resolvedByParam[p.Name]
		if !ok {
			continue
		}
		switch p.Class {
		case signature.ParamScalar:
			res.ScalarArgs[p.Name] = a.Value
		case signature.ParamEntity:
			res.EntityArgs[p.Name] = EntityArg{ContentID: a.ContentID, RootContentID: a.DependsOn}
		}
	}

	if desc.Input == signature.SingleEntityWithConfig || desc.Input == signature.PureConfig {
		cfgValue, cfgContentID, err := buildConfig(desc, resolvedByParam, args, c)
		if err != nil {
			return nil, err
		}
		res.ConfigValue, res.ConfigContentID = cfgValue, cfgContentID
	}

	if desc.InputEntityType != nil {
		composite, prov := buildComposite(desc, resolvedByParam)
		res.Composite, res.CompositeProvenance = composite, prov
	}

	return res, nil
}

func classifyArg(raw any, class signature.ParamClass, r Resolver, c Committer) (Arg, error) {
	if s, ok := raw.(string); ok && len(s) > 0 && s[0] == '@' {
		resolved, err := r.Resolve(s)
		if err != nil {
			return Arg{}, err
		}
		return Arg{
			Value:     resolved.Value,
			IsEntity:  resolved.Mode != resolve.ModeFieldValue,
			ContentID: resolved.ContentID,
			DependsOn: resolved.RootContentID,
		}, nil
	}

	rv := reflect.ValueOf(raw)
	if class != signature.ParamScalar && rv.IsValid() && rv.Kind() == reflect.Ptr && !rv.IsNil() {
		if _, ok := entity.IsRegisteredPtr(rv.Type()); ok {
			node, err := c.PutRoot(raw)
			if err != nil {
				return Arg{}, err
			}
			return Arg{Value: raw, IsEntity: true, ContentID: node.ContentID, DependsOn: node.RootContentID}, nil
		}
	}
	return Arg{Value: raw}, nil
}

// buildConfig resolves the call's configuration value: either a
// caller-provided configuration entity, or one instantiated from scalar
// arguments using the declared configuration type's registered defaults
// for any field the caller omitted (§4.5 step 3). Either way, the
// configuration entity is committed here, in-line with composition.
func buildConfig(desc *signature.Descriptor, resolved map[string]Arg, rawArgs map[string]any, c Committer) (any, string, error) {
	var configParam *signature.Param
	for i := range desc.Params {
		if desc.Params[i].Class == signature.ParamConfig {
			configParam = &desc.Params[i]
			break
		}
	}
	if configParam == nil {
		// pure_config with only scalars and no declared config parameter:
		// nothing to instantiate, the scalars travel as ScalarArgs.
		return nil, "", nil
	}

	var cfgValue any
	if a, ok := resolved[configParam.Name]; ok {
		cfgValue = a.Value
	} else {
		cfgType := configParam.Type.Elem()
		ptr := reflect.New(cfgType)
		defaults := entity.Defaults(cfgType)
		for i := 0; i < cfgType.NumField(); i++ {
			sf := cfgType.Field(i)
			if sf.PkgPath != "" {
				continue
			}
			v, ok := rawArgs[fieldArgName(sf.Name)]
			if !ok {
				v, ok = rawArgs[snakeArgName(sf.Name)]
			}
			if ok {
				rv := reflect.ValueOf(v)
				if rv.Type().ConvertibleTo(sf.Type) {
					ptr.Elem().Field(i).Set(rv.Convert(sf.Type))
				}
				continue
			}
			if lit, ok := defaults[sf.Name]; ok {
				if err := setFromLiteral(ptr.Elem().Field(i), lit); err != nil {
					return nil, "", fmt.Errorf("%w: config field %q: %v", errors.ErrSignature, sf.Name, err)
				}
			}
		}
		cfgValue = ptr.Interface()
	}

	node, err := c.PutRoot(cfgValue)
	if err != nil {
		return nil, "", err
	}
	return cfgValue, node.ContentID, nil
}

func fieldArgName(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}
	r := []rune(fieldName)
	if r[0] >= 'A' && r[0] <= 'Z' {
		r[0] = r[0] + ('a' - 'A')
	}
	return string(r)
}

// snakeArgName is the snake_case form of a field name ("MinLength" ->
// "min_length"), the key cmd/encr derives from a dashed flag.
func snakeArgName(fieldName string) string {
	var out []rune
	for i, r := range fieldName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

func setFromLiteral(fv reflect.Value, lit string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(lit)
	case reflect.Bool:
		fv.SetBool(lit == "true")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if _, err := fmt.Sscanf(lit, "%d", &n); err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Float32, reflect.Float64:
		var f float64
		if _, err := fmt.Sscanf(lit, "%g", &f); err != nil {
			return err
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported default literal kind %s", fv.Kind())
	}
	return nil
}

// buildComposite instantiates desc.InputEntityType, assigning each
// non-config parameter's resolved value to its corresponding synthesized
// field, and records provenance: address-sourced and direct-entity
// fields carry their source content_id — including a scalar pulled from a
// field-value address, whose source is the entity the field was read
// from, not the scalar itself — while a raw literal scalar carries no
// provenance entry (§4.5 step 4; R1's round-trip law).
func buildComposite(desc *signature.Descriptor, resolved map[string]Arg) (any, entity.Provenance) {
	ptr := reflect.New(desc.InputEntityType)
	structVal := ptr.Elem()
	prov := entity.Provenance{}

	for i := 0; i < desc.InputEntityType.NumField(); i++ {
		sf := desc.InputEntityType.Field(i)
		tag := sf.Tag.Get("encr")
		a, ok := resolved[tag]
		if !ok || a.Value == nil {
			continue
		}
		rv := reflect.ValueOf(a.Value)
		if rv.IsValid() && rv.Type().AssignableTo(sf.Type) {
			structVal.Field(i).Set(rv)
		}
		if a.ContentID != "" {
			prov[sf.Name] = entity.Leaf(a.ContentID)
		}
	}
	return ptr.Interface(), prov
}
