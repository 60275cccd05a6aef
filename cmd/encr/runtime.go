// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/internal/metrics"
	"github.com/kraklabs/encr/pkg/registry"
)

// openRegistry builds a fresh Registry with the demo domain registered
// and, if a snapshot file exists at cfg.SnapshotDir, restores its prior
// store state — the CLI's process-per-invocation analogue of a long-lived
// server holding the registry in memory.
func openRegistry(cfg *Config) (*registry.Registry, error) {
	rec := metrics.New(prometheus.DefaultRegisterer)
	reg := registry.New(rec)
	if err := registerDemo(reg); err != nil {
		return nil, errors.NewDetailed("Cannot register demo functions", "", "", err)
	}

	if cfg != nil && cfg.SnapshotDir != "" {
		if data, err := os.ReadFile(cfg.SnapshotDir); err == nil {
			if err := reg.Restore(data); err != nil {
				return nil, errors.NewDetailed("Cannot restore snapshot", cfg.SnapshotDir, "", err)
			}
		}
	}
	return reg, nil
}

// closeRegistry persists reg's store state back to cfg.SnapshotDir so the
// next invocation of the CLI can pick up where this one left off.
func closeRegistry(reg *registry.Registry, cfg *Config) error {
	if cfg == nil || cfg.SnapshotDir == "" {
		return nil
	}
	data, err := reg.Snapshot()
	if err != nil {
		return errors.NewDetailed("Cannot snapshot registry", "", "", err)
	}
	return os.WriteFile(cfg.SnapshotDir, data, 0o644)
}

// loadConfigOrDefault loads the configuration at configPath, falling back
// to an in-memory default (no snapshot persistence) if none exists yet —
// mirroring the teacher's "use empty config" fallback in cmd/cie/main.go's
// serve case.
func loadConfigOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return &Config{}
	}
	return cfg
}
