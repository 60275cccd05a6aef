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

// runGet executes the 'get' CLI command: print a committed entity,
// resolved by its bare content_id or a full "@content_id[.step]*"
// address.
func runGet(args []string, configPath string, globals GlobalFlags) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: encr get <content_id|@address>\n")
		os.Exit(1)
	}

	cfg := loadConfigOrDefault(configPath)
	reg, err := openRegistry(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	var value any
	var contentID string
	if len(args[0]) > 0 && args[0][0] == '@' {
		resolved, err := reg.Resolve(args[0])
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		value, contentID = resolved.Value, resolved.ContentID
	} else {
		n, err := reg.Get(args[0])
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		value, contentID = n.Value, n.ContentID
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(value)
		return
	}

	ui.Header(contentID)
	data, _ := json.MarshalIndent(value, "  ", "  ")
	fmt.Printf("  %s\n", string(data))
}
