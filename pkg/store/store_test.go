// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/tree"
)

type storeTestWidget struct {
	Name  string
	Child *storeTestChild
}

type storeTestChild struct {
	Label string
}

func init() {
	if err := entity.Declare[storeTestWidget](entity.KindEntity); err != nil {
		panic(err)
	}
	if err := entity.Declare[storeTestChild](entity.KindEntity); err != nil {
		panic(err)
	}
}

func TestPutRoot_CommitsAndReturnsRootNode(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}

	n, err := s.PutRoot(w)
	require.NoError(t, err)
	assert.True(t, n.IsRoot())
	assert.NotSame(t, w, n.Value, "PutRoot must commit an isolated copy, never the caller's live value")
}

func TestPutRoot_IsIdempotentForIdenticalPayload(t *testing.T) {
	s := New()
	w1 := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	w2 := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}

	n1, err := s.PutRoot(w1)
	require.NoError(t, err)
	n2, err := s.PutRoot(w2)
	require.NoError(t, err)

	assert.Equal(t, n1.ContentID, n2.ContentID, "identical payloads collapse to the same content_id (P2)")
	assert.Same(t, n1, n2, "a second PutRoot of a known root returns the exact existing node, unchanged")
}

func TestGetFrozen_ReturnsIsolatedCopiesEachCall(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	root, err := s.PutRoot(w)
	require.NoError(t, err)

	t1, err := s.GetFrozen(root.ContentID)
	require.NoError(t, err)
	t2, err := s.GetFrozen(root.ContentID)
	require.NoError(t, err)

	assert.NotSame(t, t1.Root().Value, t2.Root().Value, "two GetFrozen calls must never alias the same live pointer")
}

func TestGetFrozen_UnknownRoot(t *testing.T) {
	s := New()
	_, err := s.GetFrozen("c_does_not_exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRootOf_ResolvesNestedMember(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	root, err := s.PutRoot(w)
	require.NoError(t, err)

	frozen, err := s.GetFrozen(root.ContentID)
	require.NoError(t, err)
	childCID := frozen.Paths["Child"]

	rootID, ok := s.RootOf(childCID)
	require.True(t, ok)
	assert.Equal(t, root.ContentID, rootID)
}

func TestHistory_TracksLineageAcrossVersions(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	root, err := s.PutRoot(w)
	require.NoError(t, err)

	live, err := s.GetFrozen(root.ContentID)
	require.NoError(t, err)
	liveWidget := live.Root().Value.(*storeTestWidget)
	liveWidget.Name = "b"

	newTree, changed, err := s.Version(root.ContentID, liveWidget)
	require.NoError(t, err)
	require.True(t, changed)

	hist, err := s.History(live.Root().LineageID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, root.ContentID, hist[0])
	assert.Equal(t, newTree.RootContentID, hist[1])
}

func TestVersion_NoopWhenContentUnchanged(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	root, err := s.PutRoot(w)
	require.NoError(t, err)

	live, err := s.GetFrozen(root.ContentID)
	require.NoError(t, err)

	_, changed, err := s.Version(root.ContentID, live.Root().Value)
	require.NoError(t, err)
	assert.False(t, changed, "re-committing byte-identical content must be a no-op")
}

func TestVersion_PreservesLineagePerPath(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	root, err := s.PutRoot(w)
	require.NoError(t, err)

	live, err := s.GetFrozen(root.ContentID)
	require.NoError(t, err)
	liveWidget := live.Root().Value.(*storeTestWidget)
	childLineageBefore := live.Nodes[live.Paths["Child"]].LineageID

	liveWidget.Name = "changed"

	newTree, changed, err := s.Version(root.ContentID, liveWidget)
	require.NoError(t, err)
	require.True(t, changed)

	childAfter := newTree.Nodes[newTree.Paths["Child"]]
	assert.Equal(t, childLineageBefore, childAfter.LineageID, "an unchanged child keeps its lineage_id across its parent's version")
	assert.Empty(t, childAfter.PriorContentID, "a child whose content_id didn't change gets no prior_content_id")

	rootAfter := newTree.Root()
	assert.Equal(t, root.ContentID, rootAfter.PriorContentID)
	assert.Equal(t, root.LineageID, rootAfter.LineageID)
}

func TestVersion_UnknownOldRoot(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	_, _, err := s.Version("c_missing", w)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPutDetached_CommitsAsNewRoot(t *testing.T) {
	s := New()
	child := &storeTestChild{Label: "detached"}
	n, err := s.PutDetached(child)
	require.NoError(t, err)
	assert.True(t, n.IsRoot())
}

func TestVersionTree_SameRootIsNoop(t *testing.T) {
	s := New()
	w := &storeTestWidget{Name: "a", Child: &storeTestChild{Label: "c"}}
	root, err := s.PutRoot(w)
	require.NoError(t, err)

	walked, err := tree.Walk(w)
	require.NoError(t, err)

	_, changed, err := s.VersionTree(root.ContentID, walked)
	require.NoError(t, err)
	assert.False(t, changed)
}
