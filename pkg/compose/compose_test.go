// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package compose

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/resolve"
	"github.com/kraklabs/encr/pkg/signature"
	"github.com/kraklabs/encr/pkg/store"
)

type composeTestDoc struct {
	Title string
}

type composeTestConfig struct {
	Limit int
	Label string
}

func init() {
	if err := entity.Declare[composeTestDoc](entity.KindEntity); err != nil {
		panic(err)
	}
	if err := entity.Declare[composeTestConfig](entity.KindConfig, entity.WithDefault("Limit", "10")); err != nil {
		panic(err)
	}
}

// fakeResolver lets tests resolve canned "@..." addresses without a real store.
type fakeResolver struct {
	byAddress map[string]*resolve.Resolved
}

func (f *fakeResolver) Resolve(address string) (*resolve.Resolved, error) {
	r, ok := f.byAddress[address]
	if !ok {
		return nil, assertErr(address)
	}
	return r, nil
}

func assertErr(address string) error {
	return &resolveMissErr{address}
}

type resolveMissErr struct{ address string }

func (e *resolveMissErr) Error() string { return "no such address: " + e.address }

func analyzeDesc(t *testing.T, fn any, names ...string) *signature.Descriptor {
	t.Helper()
	d, err := signature.Analyze("test", reflect.ValueOf(fn), names)
	require.NoError(t, err)
	return d
}

func TestCompose_SingleEntityDirect_CommitsAndBuildsComposite(t *testing.T) {
	fn := func(doc *composeTestDoc) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "doc")

	s := store.New()
	args := map[string]any{"doc": &composeTestDoc{Title: "hello"}}

	res, err := Compose(desc, args, &fakeResolver{}, s)
	require.NoError(t, err)

	require.Contains(t, res.EntityArgs, "doc")
	assert.NotEmpty(t, res.EntityArgs["doc"].ContentID)
	require.NotNil(t, res.Composite)
	assert.Contains(t, res.CompositeProvenance, "Doc")
}

func TestCompose_AddressArgument_ResolvesThroughResolver(t *testing.T) {
	fn := func(doc *composeTestDoc) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "doc")

	resolved := &resolve.Resolved{
		Mode:          resolve.ModeEntity,
		ContentID:     "c_doc_1",
		RootContentID: "c_root_1",
		Value:         &composeTestDoc{Title: "from address"},
	}
	r := &fakeResolver{byAddress: map[string]*resolve.Resolved{"@c_doc_1": resolved}}

	s := store.New()
	args := map[string]any{"doc": "@c_doc_1"}

	res, err := Compose(desc, args, r, s)
	require.NoError(t, err)
	assert.Equal(t, "c_doc_1", res.EntityArgs["doc"].ContentID)
	assert.Equal(t, "c_root_1", res.EntityArgs["doc"].RootContentID)
	assert.Equal(t, []string{"c_root_1"}, res.DependencyRoots)
}

// TestCompose_PureBorrowing_FieldValueAddressesRecordSourceProvenance
// covers the spec's seed scenario S1 (concat(a="@id(e1).name",
// b="@id(e2).name")): two scalar parameters sourced entirely from
// field-value addresses, with no entity parameter at all. Round-trip law
// R1 requires the composite input's provenance_map to name each scalar's
// source entity even though the scalar value itself carries no identity.
func TestCompose_PureBorrowing_FieldValueAddressesRecordSourceProvenance(t *testing.T) {
	fn := func(a, b string) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "a", "b")
	require.Equal(t, signature.PureBorrowing, desc.Input)

	r := &fakeResolver{byAddress: map[string]*resolve.Resolved{
		"@c_e1.name": {Mode: resolve.ModeFieldValue, ContentID: "c_e1", RootContentID: "c_root_e1", Value: "alice"},
		"@c_e2.name": {Mode: resolve.ModeFieldValue, ContentID: "c_e2", RootContentID: "c_root_e2", Value: "bob"},
	}}

	s := store.New()
	args := map[string]any{"a": "@c_e1.name", "b": "@c_e2.name"}

	res, err := Compose(desc, args, r, s)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"c_root_e1", "c_root_e2"}, res.DependencyRoots)
	assert.Equal(t, "alice", res.ScalarArgs["a"])
	assert.Equal(t, "bob", res.ScalarArgs["b"])

	require.NotNil(t, res.Composite, "pure_borrowing scalars still populate a composite input entity")
	require.Contains(t, res.CompositeProvenance, "A")
	require.Contains(t, res.CompositeProvenance, "B")
	assert.Equal(t, "c_e1", res.CompositeProvenance["A"].ContentID, "a field-value-sourced scalar's provenance names the entity it was read from")
	assert.Equal(t, "c_e2", res.CompositeProvenance["B"].ContentID)
}

func TestCompose_ScalarArgumentsPassThrough(t *testing.T) {
	fn := func(name string, count int) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "name", "count")

	s := store.New()
	args := map[string]any{"name": "abc", "count": 3}

	res, err := Compose(desc, args, &fakeResolver{}, s)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.ScalarArgs["name"])
	assert.Equal(t, 3, res.ScalarArgs["count"])
	assert.Empty(t, res.DependencyRoots)
}

func TestCompose_PureConfig_FillsDefaultsForOmittedFields(t *testing.T) {
	fn := func(cfg *composeTestConfig) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "cfg")

	s := store.New()
	args := map[string]any{"label": "custom"}

	res, err := Compose(desc, args, &fakeResolver{}, s)
	require.NoError(t, err)
	require.NotNil(t, res.ConfigValue)
	cfg := res.ConfigValue.(*composeTestConfig)
	assert.Equal(t, 10, cfg.Limit, "an omitted scalar field falls back to its registered default")
	assert.Equal(t, "custom", cfg.Label, "a supplied scalar argument overrides the default")
	assert.NotEmpty(t, res.ConfigContentID)
}

func TestCompose_CallerSuppliedConfigEntityIsUsedDirectly(t *testing.T) {
	fn := func(cfg *composeTestConfig) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "cfg")

	s := store.New()
	args := map[string]any{"cfg": &composeTestConfig{Limit: 99, Label: "explicit"}}

	res, err := Compose(desc, args, &fakeResolver{}, s)
	require.NoError(t, err)
	cfg := res.ConfigValue.(*composeTestConfig)
	assert.Equal(t, 99, cfg.Limit)
}

func TestCompose_MultiEntityComposite_ProvenanceRecordsEachSource(t *testing.T) {
	type composeTestOther struct{ Name string }
	require.NoError(t, entity.Declare[composeTestOther](entity.KindEntity))

	fn := func(a *composeTestDoc, b *composeTestOther) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "a", "b")

	s := store.New()
	args := map[string]any{
		"a": &composeTestDoc{Title: "first"},
		"b": &composeTestOther{Name: "second"},
	}

	res, err := Compose(desc, args, &fakeResolver{}, s)
	require.NoError(t, err)
	require.NotNil(t, res.Composite)
	assert.Len(t, res.CompositeProvenance, 2)
	assert.Contains(t, res.CompositeProvenance, "A")
	assert.Contains(t, res.CompositeProvenance, "B")
}

func TestCompose_OmittedOptionalArgumentIsSkipped(t *testing.T) {
	fn := func(doc *composeTestDoc) (*composeTestDoc, error) { return nil, nil }
	desc := analyzeDesc(t, fn, "doc")

	s := store.New()
	res, err := Compose(desc, map[string]any{}, &fakeResolver{}, s)
	require.NoError(t, err)
	assert.Empty(t, res.EntityArgs)
	assert.Empty(t, res.DependencyRoots)
}
