// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ledger is the execution ledger (C8): one audited record per
// call, committed through the same store as any other entity (§4.8).
package ledger

import (
	"sync"
	"time"

	"github.com/kraklabs/encr/pkg/entity"
)

// Record is the execution record described in §3. It is declared as an
// ordinary entity kind and participates in the store's versioning rules
// like any other payload.
type Record struct {
	FunctionName            string
	InputRootID             string
	OutputRootIDs           []string
	ConfigIDs               []string
	DurationNanos           int64
	Succeeded               bool
	ErrorMessage            string
	InputPattern            string
	OutputPattern           string
	SemanticClassifications []string
	WasUnpacked             bool
	SiblingGroups           [][]string
	OriginalReturnShape     string
}

func init() {
	_ = entity.Declare[Record](entity.KindEntity)
}

// Store is the subset of *store.Store the ledger depends on.
type Store interface {
	PutRoot(e any) (*entity.Node, error)
}

// Ledger commits execution records and keeps a fast execution_id →
// content_id lookup index, grounded in the teacher corpus's in-memory
// execution trace index pattern — the store underneath remains the
// source of truth; this index is a convenience, never load-bearing.
type Ledger struct {
	store Store

	mu          sync.Mutex
	byExecution map[string]string
}

// New returns a Ledger backed by store.
func New(store Store) *Ledger {
	return &Ledger{store: store, byExecution: map[string]string{}}
}

// Commit populates and commits one execution record (§4.8). Exactly one
// commit happens per call: at the failure point for a failing call, or
// at the end for a successful one.
func (l *Ledger) Commit(executionID string, rec *Record, duration time.Duration) (*entity.Node, error) {
	rec.DurationNanos = duration.Nanoseconds()
	node, err := l.store.PutRoot(rec)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.byExecution[executionID] = node.ContentID
	l.mu.Unlock()
	return node, nil
}

// Lookup returns the content_id of the execution record for executionID.
func (l *Ledger) Lookup(executionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cid, ok := l.byExecution[executionID]
	return cid, ok
}
