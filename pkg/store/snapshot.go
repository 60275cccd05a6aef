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
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/tree"
)

// Snapshot and Restore are an optional, opt-in persistence seam for a
// process that wants the store to survive a restart (nothing calls these
// automatically; pkg/registry only forwards its own Snapshot and Restore
// methods to them; SPEC_FULL.md §4.1 notes persistence is out of scope
// for the in-memory runtime but worth wiring since it costs nothing and
// exercises the teacher's yaml config idiom, cmd/cie/config.go's
// LoadConfig/SaveConfig pair).

type snapshotDoc struct {
	Roots []snapshotTree `yaml:"roots"`
}

type snapshotTree struct {
	RootContentID string            `yaml:"root_content_id"`
	Nodes         []snapshotNode    `yaml:"nodes"`
	Edges         []snapshotEdge    `yaml:"edges"`
	Paths         map[string]string `yaml:"paths"`
	Order         []string          `yaml:"order"`
}

type snapshotNode struct {
	ContentID            string    `yaml:"content_id"`
	InstanceID           string    `yaml:"instance_id"`
	LineageID            string    `yaml:"lineage_id"`
	PriorContentID       string    `yaml:"prior_content_id,omitempty"`
	RootContentID        string    `yaml:"root_content_id"`
	DerivedFromFunction  string    `yaml:"derived_from_function,omitempty"`
	DerivedFromExecution string    `yaml:"derived_from_execution,omitempty"`
	SiblingIDs           []string  `yaml:"sibling_ids,omitempty"`
	OutputIndex          int       `yaml:"output_index,omitempty"`
	HasOutputIndex       bool      `yaml:"has_output_index,omitempty"`
	TypeName             string    `yaml:"type_name"`
	Kind                 int       `yaml:"kind"`
	Payload              yaml.Node `yaml:"payload"`
}

type snapshotEdge struct {
	ParentContentID string `yaml:"parent_content_id"`
	Field           string `yaml:"field"`
	Container       int    `yaml:"container"`
	Position        any    `yaml:"position"`
	ChildContentID  string `yaml:"child_content_id"`
}

// Snapshot marshals every committed root tree to YAML.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := snapshotDoc{}
	for rootID, t := range s.byContentID {
		st := snapshotTree{
			RootContentID: rootID,
			Paths:         t.Paths,
			Order:         t.Order,
		}
		for _, e := range t.Edges {
			st.Edges = append(st.Edges, snapshotEdge{
				ParentContentID: e.ParentContentID,
				Field:           e.Field,
				Container:       int(e.Container),
				Position:        e.Position,
				ChildContentID:  e.ChildContentID,
			})
		}
		for cid, n := range t.Nodes {
			var payload yaml.Node
			if err := payload.Encode(n.Value); err != nil {
				return nil, fmt.Errorf("store: snapshot: encoding member %s: %w", cid, err)
			}
			st.Nodes = append(st.Nodes, snapshotNode{
				ContentID:            n.ContentID,
				InstanceID:           n.InstanceID,
				LineageID:            n.LineageID,
				PriorContentID:       n.PriorContentID,
				RootContentID:        n.RootContentID,
				DerivedFromFunction:  n.DerivedFromFunction,
				DerivedFromExecution: n.DerivedFromExecution,
				SiblingIDs:           n.SiblingIDs,
				OutputIndex:          n.OutputIndex,
				HasOutputIndex:       n.HasOutputIndex,
				TypeName:             n.TypeName,
				Kind:                 int(n.Kind),
				Payload:              payload,
			})
		}
		doc.Roots = append(doc.Roots, st)
	}

	return yaml.Marshal(&doc)
}

// Restore replaces the store's contents with a previously captured
// Snapshot. Every entity type referenced in data must already be
// registered via entity.Declare in the running process.
func (s *Store) Restore(data []byte) error {
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("store: restore: %w", err)
	}

	byContentID := map[string]*tree.Tree{}
	memberToRoot := map[string]string{}
	byLineage := map[string][]string{}

	for _, st := range doc.Roots {
		t := &tree.Tree{
			RootContentID: st.RootContentID,
			Nodes:         map[string]*entity.Node{},
			Paths:         st.Paths,
			Order:         append([]string(nil), st.Order...),
		}
		for _, se := range st.Edges {
			t.Edges = append(t.Edges, entity.Edge{
				ParentContentID: se.ParentContentID,
				Field:           se.Field,
				Container:       entity.ContainerKind(se.Container),
				Position:        se.Position,
				ChildContentID:  se.ChildContentID,
			})
		}
		for _, sn := range st.Nodes {
			typ, kind, ok := entity.LookupByName(sn.TypeName)
			if !ok {
				return fmt.Errorf("%w: restore: type %q is not registered in this process", errors.ErrUnknown, sn.TypeName)
			}
			ptr := reflect.New(typ)
			if err := sn.Payload.Decode(ptr.Interface()); err != nil {
				return fmt.Errorf("store: restore: decoding member %s: %w", sn.ContentID, err)
			}
			t.Nodes[sn.ContentID] = &entity.Node{
				ContentID:            sn.ContentID,
				InstanceID:           sn.InstanceID,
				LineageID:            sn.LineageID,
				PriorContentID:       sn.PriorContentID,
				RootContentID:        sn.RootContentID,
				DerivedFromFunction:  sn.DerivedFromFunction,
				DerivedFromExecution: sn.DerivedFromExecution,
				SiblingIDs:           sn.SiblingIDs,
				OutputIndex:          sn.OutputIndex,
				HasOutputIndex:       sn.HasOutputIndex,
				TypeName:             sn.TypeName,
				Kind:                 kind,
				Value:                ptr.Interface(),
			}
		}
		byContentID[st.RootContentID] = t
		for cid, n := range t.Nodes {
			memberToRoot[cid] = st.RootContentID
			hist := byLineage[n.LineageID]
			if len(hist) == 0 || hist[len(hist)-1] != cid {
				byLineage[n.LineageID] = append(hist, cid)
			}
		}
	}

	s.mu.Lock()
	s.byContentID = byContentID
	s.memberToRoot = memberToRoot
	s.byLineage = byLineage
	s.mu.Unlock()
	return nil
}
