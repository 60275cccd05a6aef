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
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/internal/ui"
	"github.com/kraklabs/encr/pkg/registry"
)

// plannedCall is one entry of a replay file: a function name plus the
// arguments to invoke it with.
type plannedCall struct {
	Function string        `yaml:"function"`
	Args     registry.Args `yaml:"args"`
}

// runReplay executes the 'replay' CLI command: read a YAML file of
// {function, args} entries and Invoke each one in order against one
// registry, reporting progress the way the teacher's indexing pipeline
// reports file-parsing progress.
func runReplay(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: encr replay <file> [options]

Description:
  Invoke a batch of calls described in a YAML file, one after another:

    - function: new_document
      args:
        title: "Notes"
        body: "hello"
    - function: add_section
      args:
        doc: "@<content_id from the previous call>"
        heading: "Intro"
        body: "..."

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fs.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		errors.FatalError(errors.NewDetailed("Cannot read replay file", rest[0], "", err), globals.JSON)
	}

	var calls []plannedCall
	if err := yaml.Unmarshal(data, &calls); err != nil {
		errors.FatalError(errors.NewDetailed("Cannot parse replay file", rest[0], "", err), globals.JSON)
	}

	cfg := loadConfigOrDefault(configPath)
	reg, err := openRegistry(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	var bar *progressbar.ProgressBar
	if !globals.Quiet {
		bar = progressbar.Default(int64(len(calls)), "replaying calls")
	}

	ctx := context.Background()
	for i, call := range calls {
		result, err := reg.Invoke(ctx, call.Function, call.Args)
		if err != nil {
			errors.FatalError(fmt.Errorf("call %d (%s): %w", i+1, call.Function, err), globals.JSON)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
		if globals.Verbose >= 1 {
			logInfo(globals, "replay.call %d/%d function=%s execution=%s", i+1, len(calls), call.Function, result.ExecutionID)
		}
	}

	if err := closeRegistry(reg, cfg); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Header("replay complete")
		fmt.Printf("  %s %s\n", ui.Label("Calls:"), ui.CountText(len(calls)))
	}
}
