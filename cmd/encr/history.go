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
	"encoding/json"
	"fmt"
	"os"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/internal/ui"
)

// runHistory executes the 'history' CLI command: print the ordered
// content_ids a lineage_id has taken on.
func runHistory(args []string, configPath string, globals GlobalFlags) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: encr history <lineage_id>\n")
		os.Exit(1)
	}

	cfg := loadConfigOrDefault(configPath)
	reg, err := openRegistry(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ids, err := reg.History(args[0])
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ids)
		return
	}

	ui.Header("lineage history")
	for i, id := range ids {
		fmt.Printf("  %s %s\n", ui.DimText(fmt.Sprintf("%d.", i+1)), id)
	}
}
