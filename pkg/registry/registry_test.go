// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
)

type registryTestDoc struct {
	Title string
}

func init() {
	if err := Declare[registryTestDoc](entity.KindEntity); err != nil {
		panic(err)
	}
}

func TestRegister_AndInvoke(t *testing.T) {
	reg := New(nil)
	err := Register(reg, "new_doc", func(title string) (*registryTestDoc, error) {
		return &registryTestDoc{Title: title}, nil
	}, "title")
	require.NoError(t, err)

	res, err := reg.Invoke(context.Background(), "new_doc", Args{"title": "hello"})
	require.NoError(t, err)
	require.NotNil(t, res.Entity)
	assert.Equal(t, "hello", mustGetDoc(t, reg, res.Entity.ContentID).Title)
}

func TestRegister_DuplicateNameFails(t *testing.T) {
	reg := New(nil)
	fn := func(title string) (*registryTestDoc, error) { return &registryTestDoc{Title: title}, nil }
	require.NoError(t, Register(reg, "dup", fn, "title"))

	err := Register(reg, "dup", fn, "title")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyRegistered)
}

func TestInvoke_UnknownFunctionName(t *testing.T) {
	reg := New(nil)
	_, err := reg.Invoke(context.Background(), "does_not_exist", Args{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknown)
}

func TestGet_ReturnsCommittedEntity(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "new_doc", func(title string) (*registryTestDoc, error) {
		return &registryTestDoc{Title: title}, nil
	}, "title"))

	res, err := reg.Invoke(context.Background(), "new_doc", Args{"title": "x"})
	require.NoError(t, err)

	n, err := reg.Get(res.Entity.ContentID)
	require.NoError(t, err)
	assert.Equal(t, res.Entity.ContentID, n.ContentID)
}

func TestGet_UnknownContentID(t *testing.T) {
	reg := New(nil)
	_, err := reg.Get("c_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestResolve_DelegatesToResolver(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "new_doc", func(title string) (*registryTestDoc, error) {
		return &registryTestDoc{Title: title}, nil
	}, "title"))

	res, err := reg.Invoke(context.Background(), "new_doc", Args{"title": "y"})
	require.NoError(t, err)

	resolved, err := reg.Resolve("@" + res.Entity.ContentID)
	require.NoError(t, err)
	assert.Equal(t, res.Entity.ContentID, resolved.ContentID)
}

func TestHistory_TracksVersionsAcrossInvokes(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "new_doc", func(title string) (*registryTestDoc, error) {
		return &registryTestDoc{Title: title}, nil
	}, "title"))
	require.NoError(t, Register(reg, "rename", func(doc *registryTestDoc, title string) (*registryTestDoc, error) {
		doc.Title = title
		return doc, nil
	}, "doc", "title"))

	created, err := reg.Invoke(context.Background(), "new_doc", Args{"title": "v1"})
	require.NoError(t, err)

	renamed, err := reg.Invoke(context.Background(), "rename", Args{
		"doc":   "@" + created.Entity.ContentID,
		"title": "v2",
	})
	require.NoError(t, err)

	hist, err := reg.History(created.Entity.LineageID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.Entity.ContentID, renamed.Entity.ContentID}, hist)
}

func TestSiblings_ReturnsCoProducedEntities(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "make_pair", func(a, b string) ([]*registryTestDoc, error) {
		return []*registryTestDoc{{Title: a}, {Title: b}}, nil
	}, "a", "b"))

	res, err := reg.Invoke(context.Background(), "make_pair", Args{"a": "x", "b": "y"})
	require.NoError(t, err)
	require.Len(t, res.Entities, 2)

	siblings, err := reg.Siblings(res.Entities[0])
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, res.Entities[1].ContentID, siblings[0].ContentID)
}

func TestSnapshotRestore_RoundTripsStoreContents(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "new_doc", func(title string) (*registryTestDoc, error) {
		return &registryTestDoc{Title: title}, nil
	}, "title"))

	res, err := reg.Invoke(context.Background(), "new_doc", Args{"title": "persisted"})
	require.NoError(t, err)

	data, err := reg.Snapshot()
	require.NoError(t, err)

	fresh := New(nil)
	require.NoError(t, fresh.Restore(data))

	n, err := fresh.Get(res.Entity.ContentID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", n.Value.(*registryTestDoc).Title)
}

func TestLookupExecution_ReturnsLedgerContentID(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "new_doc", func(title string) (*registryTestDoc, error) {
		return &registryTestDoc{Title: title}, nil
	}, "title"))

	res, err := reg.Invoke(context.Background(), "new_doc", Args{"title": "z"})
	require.NoError(t, err)

	cid, ok := reg.LookupExecution(res.ExecutionID)
	require.True(t, ok)
	assert.NotEmpty(t, cid)
}

func TestInvoke_FailingCallIsStillLedgered(t *testing.T) {
	reg := New(nil)
	require.NoError(t, Register(reg, "always_fails", func(title string) (*registryTestDoc, error) {
		return nil, fmt.Errorf("rejected")
	}, "title"))

	_, err := reg.Invoke(context.Background(), "always_fails", Args{"title": "z"})
	require.Error(t, err)

	var execErr *errors.ExecutionFailed
	require.True(t, errors.As(err, &execErr))
	cid, ok := reg.LookupExecution(execErr.ExecutionID)
	require.True(t, ok)
	assert.NotEmpty(t, cid)
}

func mustGetDoc(t *testing.T, reg *Registry, contentID string) *registryTestDoc {
	t.Helper()
	n, err := reg.Get(contentID)
	require.NoError(t, err)
	doc, ok := n.Value.(*registryTestDoc)
	require.True(t, ok)
	return doc
}
