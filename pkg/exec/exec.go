// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package exec is the executor (C6): it runs a registered function against
// one call's composed input, classifies what came back, and commits the
// result through the store — the orchestration spine tying C1 through C8
// together (§4.6).
package exec

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/pkg/compose"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/ledger"
	"github.com/kraklabs/encr/pkg/resolve"
	"github.com/kraklabs/encr/pkg/signature"
	"github.com/kraklabs/encr/pkg/tree"
	"github.com/kraklabs/encr/pkg/unpack"
)

// Registration is everything the executor needs to run one registered
// function: its reflected value and its cached signature analysis.
type Registration struct {
	Name string
	Fn   reflect.Value
	Desc *signature.Descriptor
}

// Store is the subset of *store.Store the executor depends on.
type Store interface {
	PutRoot(v any) (*entity.Node, error)
	PutDetached(v any) (*entity.Node, error)
	GetFrozen(rootContentID string) (*tree.Tree, error)
	VersionTree(oldRootContentID string, newTree *tree.Tree) (*tree.Tree, bool, error)
}

// Metrics is the executor's observational hook, implemented by
// internal/metrics. A nil Metrics is valid and simply observes nothing.
type Metrics interface {
	ObserveInvocation(functionName, inputPattern, outputPattern string, duration time.Duration, succeeded bool)
}

// InvokeOption configures one Invoke call.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	unpack bool
}

// WithUnpack controls whether a multi-primary return is unpacked into its
// individual primaries (the default) or handed back as its single
// container entity (§4.7, R2).
func WithUnpack(v bool) InvokeOption {
	return func(o *invokeOptions) { o.unpack = v }
}

// Result is what one Invoke call returns: either a single entity (B1/B7,
// or any shape retrieved with unpack=false) or the list of primaries a
// multi-valued return unpacked into.
type Result struct {
	Entity      *entity.Node
	Entities    []*entity.Node
	ExecutionID string
}

// Executor runs registered functions and commits their classified results.
type Executor struct {
	store    Store
	resolver *resolve.Resolver
	ledger   *ledger.Ledger
	metrics  Metrics
}

// New returns an Executor wired to store, resolver, and ledger. metrics may
// be nil.
func New(store Store, resolver *resolve.Resolver, led *ledger.Ledger, metrics Metrics) *Executor {
	return &Executor{store: store, resolver: resolver, ledger: led, metrics: metrics}
}

// Invoke runs reg against args and commits whatever it returns (§4.6,
// steps 1-11). Structural failures — composition, resolution — return
// directly and never reach the ledger (§7); once the user function is
// actually called, success or failure both produce exactly one ledger
// record.
func (e *Executor) Invoke(ctx context.Context, reg *Registration, args map[string]any, opts ...InvokeOption) (*Result, error) {
	o := invokeOptions{unpack: true}
	for _, opt := range opts {
		opt(&o)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	executionID := entity.NewExecutionID()

	composed, err := compose.Compose(reg.Desc, args, e.resolver, e.store)
	if err != nil {
		return nil, err
	}

	var inputRootID string
	if composed.Composite != nil {
		inputNode, err := e.store.PutRoot(composed.Composite)
		if err != nil {
			return nil, err
		}
		inputNode.Provenance = composed.CompositeProvenance
		inputRootID = inputNode.ContentID
	}

	depTrees := map[string]*tree.Tree{}
	rootPtrIndex := map[uintptr]string{}
	paramValues := map[string]any{}

	roots := map[string]struct{}{}
	for _, ea := range composed.EntityArgs {
		roots[ea.RootContentID] = struct{}{}
	}
	for root := range roots {
		t, err := e.store.GetFrozen(root)
		if err != nil {
			return nil, err
		}
		depTrees[root] = t
		rootPtrIndex[reflect.ValueOf(t.Root().Value).Pointer()] = root
	}
	for name, ea := range composed.EntityArgs {
		t := depTrees[ea.RootContentID]
		n := t.Member(ea.ContentID)
		if n == nil {
			return nil, fmt.Errorf("%w: composed member %s missing from its own working copy", errors.ErrNotFound, ea.ContentID)
		}
		paramValues[name] = n.Value
	}

	ins, err := buildArgs(ctx, reg.Desc, composed, paramValues)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outs, panicVal := callSafely(reg.Fn, ins)
	duration := time.Since(start)

	var callErr error
	switch {
	case panicVal != nil:
		callErr = fmt.Errorf("encr: function %q panicked: %v", reg.Name, panicVal)
	case reg.Desc.Output.HasError:
		if ev := outs[len(outs)-1]; !ev.IsNil() {
			callErr = ev.Interface().(error)
		}
	}

	shapeOuts := outs
	if callErr == nil && reg.Desc.Output.HasError {
		shapeOuts = outs[:len(outs)-1]
	}

	if callErr != nil {
		rec := &ledger.Record{
			FunctionName:  reg.Name,
			InputRootID:   inputRootID,
			Succeeded:     false,
			ErrorMessage:  callErr.Error(),
			InputPattern:  reg.Desc.Input.String(),
			OutputPattern: reg.Desc.Output.Pattern.String(),
		}
		if composed.ConfigContentID != "" {
			rec.ConfigIDs = []string{composed.ConfigContentID}
		}
		if _, err := e.ledger.Commit(executionID, rec, duration); err != nil {
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.ObserveInvocation(reg.Name, rec.InputPattern, rec.OutputPattern, duration, false)
		}
		return nil, &errors.ExecutionFailed{ExecutionID: executionID, InputRootID: inputRootID, FunctionName: reg.Name, Err: callErr}
	}

	unpacked, err := unpack.Unpack(&reg.Desc.Output, shapeOuts)
	if err != nil {
		return nil, err
	}

	nodes := make([]*entity.Node, len(unpacked.Primaries))
	classifications := make([]string, len(unpacked.Primaries))
	for i, prim := range unpacked.Primaries {
		n, class, err := e.classifyAndCommit(prim.Value, rootPtrIndex, depTrees)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
		classifications[i] = class
	}
	link(nodes, reg.Name, executionID)

	var containerNode *entity.Node
	if unpacked.Container != nil {
		containerNode, err = e.store.PutRoot(unpacked.Container)
		if err != nil {
			return nil, err
		}
		containerNode.DerivedFromFunction = reg.Name
		containerNode.DerivedFromExecution = executionID
	}

	rec := &ledger.Record{
		FunctionName:            reg.Name,
		InputRootID:             inputRootID,
		Succeeded:                true,
		InputPattern:             reg.Desc.Input.String(),
		OutputPattern:            reg.Desc.Output.Pattern.String(),
		SemanticClassifications:  classifications,
		WasUnpacked:              o.unpack || unpacked.Container == nil,
		OriginalReturnShape:      reg.Desc.Output.Pattern.String(),
	}
	if composed.ConfigContentID != "" {
		rec.ConfigIDs = []string{composed.ConfigContentID}
	}
	for _, n := range nodes {
		rec.OutputRootIDs = append(rec.OutputRootIDs, n.RootContentID)
	}
	if len(nodes) > 0 {
		group := make([]string, len(nodes))
		for i, n := range nodes {
			group[i] = n.ContentID
		}
		rec.SiblingGroups = [][]string{group}
	}
	if _, err := e.ledger.Commit(executionID, rec, duration); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.ObserveInvocation(reg.Name, rec.InputPattern, rec.OutputPattern, duration, true)
	}

	res := &Result{ExecutionID: executionID}
	switch {
	case !o.unpack && containerNode != nil:
		res.Entity = containerNode
	case reg.Desc.Output.Pattern == signature.B1SingleEntity || reg.Desc.Output.Pattern == signature.B7NonEntity:
		if len(nodes) > 0 {
			res.Entity = nodes[0]
		}
	default:
		res.Entities = nodes
	}
	return res, nil
}

// buildArgs assembles the reflect.Value argument list for reg's function,
// in the Go parameter order reg.Desc.Params recorded (§4.6 step 4).
func buildArgs(ctx context.Context, desc *signature.Descriptor, composed *compose.Result, paramValues map[string]any) ([]reflect.Value, error) {
	ft := desc.FuncType
	ins := make([]reflect.Value, ft.NumIn())
	if desc.TakesContext {
		ins[0] = reflect.ValueOf(ctx)
	}
	for _, p := range desc.Params {
		var val any
		switch p.Class {
		case signature.ParamEntity:
			val = paramValues[p.Name]
		case signature.ParamConfig:
			val = composed.ConfigValue
		default:
			val = composed.ScalarArgs[p.Name]
		}
		rv := reflect.ValueOf(val)
		if !rv.IsValid() {
			ins[p.Index] = reflect.Zero(p.Type)
			continue
		}
		if rv.Type() != p.Type && rv.Type().ConvertibleTo(p.Type) {
			rv = rv.Convert(p.Type)
		}
		if !rv.Type().AssignableTo(p.Type) {
			return nil, fmt.Errorf("%w: parameter %q: cannot use %s as %s", errors.ErrSignature, p.Name, rv.Type(), p.Type)
		}
		ins[p.Index] = rv
	}
	return ins, nil
}

// callSafely invokes fn, folding a panic into a recovered value rather than
// letting it unwind past the executor — a failing call and a panicking call
// are routed through the same failure path (§4.6 step 5).
func callSafely(fn reflect.Value, in []reflect.Value) (out []reflect.Value, panicVal any) {
	defer func() {
		panicVal = recover()
	}()
	out = fn.Call(in)
	return
}

// classifyAndCommit determines whether one returned primary is a mutation
// of a dependency root, the detachment of a dependency's sub-member, or a
// brand-new creation, and commits it accordingly (§4.6 steps 7-8).
//
//   - its pointer is a dependency root's own working-copy pointer: mutation
//     of that root, re-versioned as a whole (a nested field change
//     propagates to the root's content_id on its own, so re-walking the
//     returned root picks it up).
//   - its pointer is found elsewhere inside a dependency's working-copy
//     tree: the caller is handing back a sub-part of something it
//     borrowed. It is detached from its parent and promoted to its own
//     root; the parent is re-versioned to reflect the removal.
//   - neither: a fresh creation, rooted on its own.
func (e *Executor) classifyAndCommit(prim any, rootPtrIndex map[uintptr]string, depTrees map[string]*tree.Tree) (*entity.Node, string, error) {
	rv := reflect.ValueOf(prim)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, "", fmt.Errorf("%w: returned value is not a non-nil pointer", errors.ErrSignature)
	}

	if root, ok := rootPtrIndex[rv.Pointer()]; ok {
		newTree, err := tree.Walk(prim)
		if err != nil {
			return nil, "", err
		}
		newCID, ok := tree.FindByPointer(newTree, prim)
		if !ok {
			return nil, "", fmt.Errorf("%w: could not locate returned root in its own re-walk", errors.ErrUnknown)
		}
		versioned, _, err := e.store.VersionTree(root, newTree)
		if err != nil {
			return nil, "", err
		}
		n := versioned.Member(newCID)
		if n == nil {
			return nil, "", fmt.Errorf("%w: member %s missing after versioning root %s", errors.ErrNotFound, newCID, root)
		}
		return n, "mutation", nil
	}

	for root, depTree := range depTrees {
		childID, ok := tree.FindByPointer(depTree, prim)
		if !ok {
			continue
		}
		var parentEdge *entity.Edge
		for i := range depTree.Edges {
			if depTree.Edges[i].ChildContentID == childID {
				edgeCopy := depTree.Edges[i]
				parentEdge = &edgeCopy
				break
			}
		}
		if parentEdge == nil {
			// childID names depTree's own root, which rootPtrIndex already
			// covers above; reaching here means prim aliases a root pointer
			// under a content_id that was somehow missed by that check.
			return nil, "", fmt.Errorf("%w: %s is a root with no parent edge", errors.ErrUnknown, childID)
		}
		parentNode := depTree.Member(parentEdge.ParentContentID)
		if parentNode == nil {
			return nil, "", fmt.Errorf("%w: parent %s missing for detached member %s", errors.ErrNotFound, parentEdge.ParentContentID, childID)
		}
		// The function may already have dropped the reference itself; the
		// edge is removed here only if the parent still holds prim.
		current, err := tree.Walk(depTree.Root().Value)
		if err != nil {
			return nil, "", err
		}
		if _, still := tree.FindByPointer(current, prim); still {
			if err := tree.RemoveEdge(parentNode.Value, parentEdge.Field, parentEdge.Container, parentEdge.Position); err != nil {
				return nil, "", err
			}
		}

		newRootTree, err := tree.Walk(depTree.Root().Value)
		if err != nil {
			return nil, "", err
		}
		if _, _, err := e.store.VersionTree(root, newRootTree); err != nil {
			return nil, "", err
		}

		detached, err := e.store.PutDetached(prim)
		if err != nil {
			return nil, "", err
		}
		return detached, "detachment", nil
	}

	created, err := e.store.PutRoot(prim)
	if err != nil {
		return nil, "", err
	}
	return created, "creation", nil
}

// link assigns output_index/sibling_ids across one call's committed
// primaries (§3, §4.6 step 9): every primary records the function and
// execution that produced it, its position, and its siblings from the same
// call.
func link(nodes []*entity.Node, functionName, executionID string) {
	all := make([]string, len(nodes))
	for i, n := range nodes {
		all[i] = n.ContentID
	}
	for i, n := range nodes {
		n.DerivedFromFunction = functionName
		n.DerivedFromExecution = executionID
		n.OutputIndex = i
		n.HasOutputIndex = true
		siblings := make([]string, 0, len(all)-1)
		for j, cid := range all {
			if j != i {
				siblings = append(siblings, cid)
			}
		}
		n.SiblingIDs = siblings
	}
}
