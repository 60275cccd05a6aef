// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry is the entity-native callable registry's external
// facade (§6): Register a Go function once, then Invoke it by name with
// entity references, scalars, and configuration — everything else
// (composition, execution, classification, commit, ledger) happens behind
// this one surface.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/exec"
	"github.com/kraklabs/encr/pkg/ledger"
	"github.com/kraklabs/encr/pkg/resolve"
	"github.com/kraklabs/encr/pkg/signature"
	"github.com/kraklabs/encr/pkg/store"
)

// Args is one call's arguments, keyed by parameter name. A value is either
// a raw scalar, a direct *T entity pointer, a configuration entity, or an
// "@content_id[.step]*" address string (§4.3, §4.5).
type Args = map[string]any

// InvokeOption and WithUnpack are re-exported from pkg/exec so callers
// never need to import it directly.
type InvokeOption = exec.InvokeOption

// WithUnpack controls whether a multi-valued return is unpacked into its
// primary entities (the default) or handed back as its container entity.
func WithUnpack(v bool) InvokeOption { return exec.WithUnpack(v) }

// ExecResult is re-exported from pkg/exec so callers never need a second
// import just to read an Invoke result's fields.
type ExecResult = exec.Result

// Registry holds one store, one execution ledger, and the named functions
// registered against them.
type Registry struct {
	store    *store.Store
	resolver *resolve.Resolver
	ledger   *ledger.Ledger
	exec     *exec.Executor

	mu  sync.RWMutex
	fns map[string]*exec.Registration
}

// New returns an empty Registry. metrics may be nil.
func New(metrics exec.Metrics) *Registry {
	s := store.New()
	r := resolve.New(s)
	l := ledger.New(s)
	e := exec.New(s, r, l, metrics)
	return &Registry{store: s, resolver: r, ledger: l, exec: e, fns: map[string]*exec.Registration{}}
}

// Declare re-exports entity.Declare so callers never need a second import
// just to register their own entity/config kinds.
func Declare[T any](kind entity.Kind, opts ...entity.DeclareOption) error {
	return entity.Declare[T](kind, opts...)
}

// Register analyzes fn's signature and makes it callable by name via
// Invoke. paramNames must name fn's parameters left to right, skipping a
// leading context.Context if fn takes one — Go's reflect API recovers
// parameter types but never their names (§4.4).
//
// Register is a free function, not a method, because Go does not allow a
// method to carry its own type parameter.
func Register[F any](reg *Registry, name string, fn F, paramNames ...string) error {
	fv := reflect.ValueOf(fn)
	desc, err := signature.Analyze(name, fv, paramNames)
	if err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.fns[name]; exists {
		return fmt.Errorf("%w: function %q", errors.ErrAlreadyRegistered, name)
	}
	reg.fns[name] = &exec.Registration{Name: name, Fn: fv, Desc: desc}
	return nil
}

// Invoke runs the function registered as name against args (§4.6).
func (reg *Registry) Invoke(ctx context.Context, name string, args Args, opts ...InvokeOption) (*exec.Result, error) {
	reg.mu.RLock()
	r, ok := reg.fns[name]
	reg.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: function %q", errors.ErrUnknown, name)
	}
	return reg.exec.Invoke(ctx, r, args, opts...)
}

// Get returns the node for a known content_id, entity or sub-entity,
// resolved against whichever root currently carries it (§6's get).
func (reg *Registry) Get(contentID string) (*entity.Node, error) {
	rootID, ok := reg.store.RootOf(contentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, contentID)
	}
	t, err := reg.store.GetFrozen(rootID)
	if err != nil {
		return nil, err
	}
	n := t.Member(contentID)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, contentID)
	}
	return n, nil
}

// Resolve parses and navigates a "@content_id[.step]*" address (§4.3).
func (reg *Registry) Resolve(address string) (*resolve.Resolved, error) {
	return reg.resolver.Resolve(address)
}

// History returns the ordered content_ids a lineage_id has taken on.
func (reg *Registry) History(lineageID string) ([]string, error) {
	return reg.store.History(lineageID)
}

// Siblings returns the entities produced alongside n in the same call
// (§3's sibling_ids).
func (reg *Registry) Siblings(n *entity.Node) ([]*entity.Node, error) {
	out := make([]*entity.Node, 0, len(n.SiblingIDs))
	for _, sid := range n.SiblingIDs {
		sn, err := reg.Get(sid)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, nil
}

// Snapshot/Restore give the store optional durability across process
// restarts (not part of the invariant set, a convenience on top of it).
func (reg *Registry) Snapshot() ([]byte, error) { return reg.store.Snapshot() }
func (reg *Registry) Restore(data []byte) error { return reg.store.Restore(data) }

// LookupExecution returns the content_id of the ledger record for an
// execution_id (§4.8).
func (reg *Registry) LookupExecution(executionID string) (string, bool) {
	return reg.ledger.Lookup(executionID)
}
