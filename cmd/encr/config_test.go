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
	"path/filepath"
	"testing"
)

func TestConfigFilePath_Default(t *testing.T) {
	got := configFilePath("")
	want := filepath.Join(".encr", "registry.yaml")
	if got != want {
		t.Fatalf("configFilePath(\"\") = %q, want %q", got, want)
	}
}

func TestConfigFilePath_ExplicitOverride(t *testing.T) {
	got := configFilePath("/tmp/custom.yaml")
	if got != "/tmp/custom.yaml" {
		t.Fatalf("configFilePath() = %q, want %q", got, "/tmp/custom.yaml")
	}
}

func TestSaveConfigThenLoadConfig_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")

	cfg := defaultConfig()
	cfg.MetricsAddr = ":9191"
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Version != cfg.Version {
		t.Fatalf("LoadConfig().Version = %q, want %q", loaded.Version, cfg.Version)
	}
	if loaded.MetricsAddr != ":9191" {
		t.Fatalf("LoadConfig().MetricsAddr = %q, want %q", loaded.MetricsAddr, ":9191")
	}
}

func TestLoadConfig_MissingFileIsADetailedError(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(filepath.Join(dir, "does-not-exist.yaml"))
	if err == nil {
		t.Fatalf("LoadConfig() expected an error for a missing file")
	}
}
