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
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeContentID derives a deterministic content_id from a type name and
// its canonical field projection (scalar values as-is, entity-valued
// fields already replaced by their own content_id strings). Two payloads
// encoding to the same bytes collapse to the same content_id, which is
// what makes storing the same payload twice a no-op (I3).
func ComputeContentID(typeName string, projected map[string]any) (string, error) {
	body, err := json.Marshal(projected)
	if err != nil {
		return "", fmt.Errorf("entity: encode %s payload: %w", typeName, err)
	}
	h := sha256.New()
	h.Write([]byte(typeName))
	h.Write([]byte{0})
	h.Write(body)
	return "c_" + hex.EncodeToString(h.Sum(nil)), nil
}

// newRandomID returns a fresh random hex token with the given prefix, used
// for instance_id and lineage_id, neither of which is content-addressed:
// instance_id must be fresh on every copy and lineage_id must be fresh on
// every creation, independent of payload bytes.
func newRandomID(prefix string) string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is a platform-level emergency; panicking here
		// matches the rest of the runtime's treatment of unrecoverable
		// invariant violations during commit.
		panic(fmt.Sprintf("entity: random id generation failed: %v", err))
	}
	return prefix + hex.EncodeToString(buf[:])
}

// NewInstanceID returns a fresh instance_id.
func NewInstanceID() string { return newRandomID("i_") }

// NewLineageID returns a fresh lineage_id, used when an entity is created
// (as opposed to mutated, which preserves the prior lineage_id).
func NewLineageID() string { return newRandomID("l_") }

// NewExecutionID returns a fresh execution_id for one Invoke call.
func NewExecutionID() string { return newRandomID("x_") }
