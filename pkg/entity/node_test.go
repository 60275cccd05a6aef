// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNode_IsRoot(t *testing.T) {
	n := &Node{ContentID: "c_1", RootContentID: "c_1"}
	assert.True(t, n.IsRoot())

	child := &Node{ContentID: "c_2", RootContentID: "c_1"}
	assert.False(t, child.IsRoot())

	empty := &Node{}
	assert.False(t, empty.IsRoot(), "a node with no content_id is never its own root")
}

func TestNode_WithValue_FreshensInstanceID(t *testing.T) {
	n := &Node{ContentID: "c_1", InstanceID: "i_old", Provenance: Provenance{"f": Leaf("c_x")}, SiblingIDs: []string{"c_2"}}
	v := &struct{ X int }{X: 1}

	cp := n.WithValue(v)

	assert.Same(t, v, cp.Value)
	assert.NotEqual(t, "i_old", cp.InstanceID)
	assert.Equal(t, n.ContentID, cp.ContentID)

	cp.SiblingIDs[0] = "c_mutated"
	assert.Equal(t, "c_2", n.SiblingIDs[0], "WithValue must not alias the source's sibling slice")

	cp.Provenance["f"].ContentID = "c_mutated"
	assert.Equal(t, "c_x", n.Provenance["f"].ContentID, "WithValue must not alias the source's provenance")
}
