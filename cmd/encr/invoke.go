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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/internal/ui"
	"github.com/kraklabs/encr/pkg/entity"
	"github.com/kraklabs/encr/pkg/registry"
)

// runInvoke executes the 'invoke' CLI command: call a registered function
// by name with "--param value" arguments.
//
// Examples:
//
//	encr invoke new_document --title "Notes" --body "hello"
//	encr invoke add_section --doc @d_xyz --heading "Intro" --body "..."
func runInvoke(args []string, configPath string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: encr invoke <function> [--param value ...]\n")
		os.Exit(1)
	}
	name := args[0]
	callArgs, err := parseCallArgs(args[1:])
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	cfg := loadConfigOrDefault(configPath)
	reg, err := openRegistry(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	result, err := reg.Invoke(context.Background(), name, callArgs)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if err := closeRegistry(reg, cfg); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	printInvokeResult(result, globals)
}

// parseCallArgs turns "--key value" / "--key=value" pairs into a
// registry.Args map, converting numeric-looking scalars to int/float so
// config fields like --index or --min-length compose correctly.
func parseCallArgs(raw []string) (registry.Args, error) {
	out := registry.Args{}
	i := 0
	for i < len(raw) {
		tok := raw[i]
		if !strings.HasPrefix(tok, "--") {
			return nil, fmt.Errorf("unexpected argument %q (want --key value)", tok)
		}
		key := strings.TrimPrefix(tok, "--")
		var val string
		if idx := strings.IndexByte(key, '='); idx >= 0 {
			val = key[idx+1:]
			key = key[:idx]
			i++
		} else {
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("flag --%s is missing a value", key)
			}
			val = raw[i+1]
			i += 2
		}
		out[fieldArgKey(key)] = convertScalar(val)
	}
	return out, nil
}

func fieldArgKey(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

func convertScalar(val string) any {
	if strings.HasPrefix(val, "@") {
		return val
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	if val == "true" || val == "false" {
		return val == "true"
	}
	return val
}

// printInvokeResult renders an Invoke result either as JSON or as a short
// human-readable summary naming each committed entity.
func printInvokeResult(result *registry.ExecResult, globals GlobalFlags) {
	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summarize(result))
		return
	}

	ui.Header("invocation complete")
	fmt.Printf("  %s %s\n", ui.Label("Execution:"), ui.DimText(result.ExecutionID))
	nodes := result.Entities
	if nodes == nil && result.Entity != nil {
		nodes = []*entity.Node{result.Entity}
	}
	fmt.Printf("  %s %s\n", ui.Label("Entities:"), ui.CountText(len(nodes)))
	for _, n := range nodes {
		fmt.Printf("    - %s (%s)\n", n.ContentID, n.TypeName)
	}
}

type resultSummary struct {
	ExecutionID string   `json:"execution_id"`
	ContentIDs  []string `json:"content_ids"`
}

func summarize(result *registry.ExecResult) resultSummary {
	s := resultSummary{ExecutionID: result.ExecutionID}
	nodes := result.Entities
	if nodes == nil && result.Entity != nil {
		nodes = []*entity.Node{result.Entity}
	}
	for _, n := range nodes {
		s.ContentIDs = append(s.ContentIDs, n.ContentID)
	}
	return s
}
