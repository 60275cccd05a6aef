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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/encr/internal/errors"
)

const (
	defaultConfigDir  = ".encr"
	defaultConfigFile = "registry.yaml"
	configVersion     = "1"
)

// Config represents the .encr/registry.yaml configuration file: a thin
// analogue of the teacher's .cie/project.yaml, scoped to what a registry
// process needs at startup rather than a full indexing pipeline.
type Config struct {
	Version     string `yaml:"version"`
	SnapshotDir string `yaml:"snapshot_dir"` // where Snapshot/Restore persist store state
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// defaultConfig returns the configuration init writes when none exists yet.
func defaultConfig() *Config {
	return &Config{
		Version:     configVersion,
		SnapshotDir: filepath.Join(defaultConfigDir, "snapshot.yaml"),
	}
}

// configFilePath resolves the effective config path: an explicit
// --config flag wins, otherwise ./.encr/registry.yaml.
func configFilePath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(defaultConfigDir, defaultConfigFile)
}

// LoadConfig reads and parses the registry configuration file.
func LoadConfig(configPath string) (*Config, error) {
	path := configFilePath(configPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDetailed(
				"Configuration not found",
				fmt.Sprintf("no configuration file at %s", path),
				"run `encr init` to create one",
				err,
			)
		}
		return nil, errors.NewDetailed("Configuration unreadable", path, "", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewDetailed("Configuration invalid", path, "", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to configPath (or the default path), creating its
// parent directory if needed.
func SaveConfig(configPath string, cfg *Config) error {
	path := configFilePath(configPath)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewDetailed("Cannot create config directory", dir, "", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewDetailed("Cannot encode configuration", path, "", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewDetailed("Cannot write configuration", path, "", err)
	}
	return nil
}
