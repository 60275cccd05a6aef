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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/internal/ui"
)

// runInit executes the 'init' CLI command, creating a .encr/registry.yaml
// configuration file.
//
// Flags:
//   - --force: Overwrite existing configuration (default: false)
func runInit(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing configuration")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: encr init [options]

Description:
  Create a .encr/registry.yaml configuration file with default settings.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := configFilePath(configPath)
	if _, err := os.Stat(path); err == nil && !*force {
		errors.FatalError(errors.NewDetailed(
			"Configuration already exists",
			path,
			"pass --force to overwrite",
			nil,
		), globals.JSON)
	}

	cfg := defaultConfig()
	if err := SaveConfig(configPath, cfg); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Header("encr configuration created")
		fmt.Printf("  %s %s\n", ui.Label("Config File:"), ui.DimText(path))
		fmt.Printf("  %s %s\n", ui.Label("Snapshot:"), ui.DimText(cfg.SnapshotDir))
	}
}
