// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the entity store (C1): the single committed record of
// every entity tree the registry has ever rooted, indexed for content,
// lineage, and member-to-root lookups (§4.1).
package store

import (
	"fmt"
	"sync"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/tree"
)

// Store holds every committed entity tree. All mutating and reading
// operations take the same mutex: §5 scopes store access to a single
// critical section so History and GetFrozen never race a concurrent
// PutRoot or Version.
type Store struct {
	mu sync.Mutex

	// byContentID holds one full tree per ROOT content_id ever committed.
	byContentID map[string]*tree.Tree
	// memberToRoot maps any member's content_id (root or not) to the root
	// it was last committed under. Content is immutable, so any root that
	// ever contained a given content_id is a valid answer; last-write-wins
	// is an explicit simplification (DESIGN.md).
	memberToRoot map[string]string
	// byLineage holds, for each lineage_id, the ordered content_ids it has
	// taken on, oldest first.
	byLineage map[string][]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byContentID:  map[string]*tree.Tree{},
		memberToRoot: map[string]string{},
		byLineage:    map[string][]string{},
	}
}

// PutRoot walks root, freezes a deep copy of it, and commits that copy as
// a brand-new root tree. If root's content_id already names a committed
// root, it returns that root's node and commits nothing (I3: re-submitting
// identical content is a no-op, not a new root).
func (s *Store) PutRoot(root any) (*entity.Node, error) {
	t, err := tree.Walk(root)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// I3 / P2: resubmitting a root whose payload is byte-identical to one
	// already committed is a no-op, not an error — it returns the
	// already-stored node and leaves the store untouched.
	if existing, exists := s.byContentID[t.RootContentID]; exists {
		return existing.Root(), nil
	}

	frozen, err := tree.Clone(t)
	if err != nil {
		return nil, err
	}
	s.commitLocked(frozen)
	return frozen.Root(), nil
}

// GetFrozen returns a fresh, isolated copy of the committed tree rooted at
// rootContentID. Every call returns distinct live pointers so that no
// caller can observe or corrupt another caller's working copy (§5).
func (s *Store) GetFrozen(rootContentID string) (*tree.Tree, error) {
	s.mu.Lock()
	t, ok := s.byContentID[rootContentID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: root %s", errors.ErrNotFound, rootContentID)
	}
	return tree.Clone(t)
}

// GetFrozenMember returns a fresh copy of one member within the root tree
// that contains it, plus the node describing just that member.
func (s *Store) GetFrozenMember(rootContentID, contentID string) (*tree.Tree, *entity.Node, error) {
	t, err := s.GetFrozen(rootContentID)
	if err != nil {
		return nil, nil, err
	}
	n := t.Member(contentID)
	if n == nil {
		return nil, nil, fmt.Errorf("%w: member %s not present in root %s", errors.ErrNotFound, contentID, rootContentID)
	}
	return t, n, nil
}

// RootOf returns the root content_id a given member content_id was last
// committed under, used by the address resolver (C3) to turn a bare
// content_id into a (root, member) pair.
func (s *Store) RootOf(contentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.memberToRoot[contentID]
	return r, ok
}

// History returns the ordered content_ids a lineage_id has taken on,
// oldest first (§6's history(lineage_id)).
func (s *Store) History(lineageID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byLineage[lineageID]
	if !ok {
		return nil, fmt.Errorf("%w: lineage %s", errors.ErrNotFound, lineageID)
	}
	return append([]string(nil), h...), nil
}

// Version re-derives the content-addressed shape of a live working copy
// and, if it differs from the tree currently committed at oldRootContentID,
// commits the new shape as that root's next version. Members found at the
// same canonical path in both trees keep their lineage_id; members whose
// content_id changed get prior_content_id set to the old value at that
// path (§4.1, §4.6 step 9 — "a new committed version... only if any
// payload value differs").
func (s *Store) Version(oldRootContentID string, newLiveRoot any) (*tree.Tree, bool, error) {
	newTree, err := tree.Walk(newLiveRoot)
	if err != nil {
		return nil, false, err
	}
	return s.VersionTree(oldRootContentID, newTree)
}

// VersionTree is Version's core, taking an already-walked tree instead of
// walking a live root itself. The executor calls this directly because it
// needs the pre-clone tree (whose Nodes still alias the function's live
// return pointers) to classify each returned entity by pointer identity
// before the store freezes a copy (§4.6 steps 6-8).
func (s *Store) VersionTree(oldRootContentID string, newTree *tree.Tree) (*tree.Tree, bool, error) {
	s.mu.Lock()
	oldTree, ok := s.byContentID[oldRootContentID]
	s.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: root %s", errors.ErrNotFound, oldRootContentID)
	}

	if newTree.RootContentID == oldTree.RootContentID {
		return oldTree, false, nil
	}

	for path, newID := range newTree.Paths {
		oldID, existed := oldTree.Paths[path]
		if !existed {
			continue // brand-new member: keep the fresh lineage Walk assigned
		}
		n := newTree.Nodes[newID]
		oldNode := oldTree.Nodes[oldID]
		if oldNode == nil {
			continue
		}
		n.LineageID = oldNode.LineageID
		if oldID != newID {
			n.PriorContentID = oldID
		}
	}

	frozen, err := tree.Clone(newTree)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	s.commitLocked(frozen)
	s.mu.Unlock()

	return frozen, true, nil
}

// PutDetached commits a live value that has just been structurally
// removed from its former parent as a brand-new root in its own right
// (§4.6 step 8 — detachment). Its content_id is unaffected by becoming a
// root, since content_id never depended on root-ness; it may already be
// known as a member elsewhere, which is fine, since by_content_id is keyed
// by root content_id, a disjoint namespace from plain member lookups.
func (s *Store) PutDetached(value any) (*entity.Node, error) {
	return s.PutRoot(value)
}

func (s *Store) commitLocked(t *tree.Tree) {
	s.byContentID[t.RootContentID] = t
	for cid, n := range t.Nodes {
		s.memberToRoot[cid] = t.RootContentID
		hist := s.byLineage[n.LineageID]
		if len(hist) == 0 || hist[len(hist)-1] != cid {
			s.byLineage[n.LineageID] = append(hist, cid)
		}
	}
}
