// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tree walks a live entity root to enumerate its members, the
// edges between them, and their positions inside containers (C2). It is
// used by the store both to stamp root_content_id at commit time and to
// diff a new tree against a previously committed one (§4.2).
package tree

import (
	"github.com/kraklabs/encr/pkg/entity"
)

// Tree is the result of walking one live root: every reachable entity
// keyed by its freshly computed content_id, the edges between them, and a
// stable path index used to correlate members across versions.
type Tree struct {
	RootContentID string
	Nodes         map[string]*entity.Node
	Edges         []entity.Edge
	// Paths maps a canonical field-path (e.g. "items[0]/owner") to the
	// content_id of the member found there. The root's path is "".
	Paths map[string]string
	// Order lists content_ids in the post-order they were discovered,
	// i.e. children before parents.
	Order []string
}

// Member returns the node for a content_id, or nil.
func (t *Tree) Member(contentID string) *entity.Node {
	if t == nil {
		return nil
	}
	return t.Nodes[contentID]
}

// Root returns the tree's root node.
func (t *Tree) Root() *entity.Node {
	return t.Member(t.RootContentID)
}

// EdgesFrom returns the outgoing edges of a given parent content_id, in
// the order they were recorded.
func (t *Tree) EdgesFrom(parentContentID string) []entity.Edge {
	var out []entity.Edge
	for _, e := range t.Edges {
		if e.ParentContentID == parentContentID {
			out = append(out, e)
		}
	}
	return out
}
