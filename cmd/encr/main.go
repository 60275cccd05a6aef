// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// Package main implements the encr CLI: a demonstration harness for the
// entity-native callable registry. It registers a small document domain
// (cmd/encr/demo.go) against a fresh in-process registry and lets a caller
// invoke its functions, inspect committed entities, and replay batches of
// calls from a file.
//
// Usage:
//
//	encr init                        Create .encr/registry.yaml configuration
//	encr invoke <function> [args]    Call a registered function
//	encr get <content_id>            Print a committed entity
//	encr history <lineage_id>        Print a lineage's content_id history
//	encr replay <file>               Invoke a batch of calls from a file
//	encr serve --metrics-addr :9090  Expose Prometheus metrics
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/encr/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func logInfo(globals GlobalFlags, format string, args ...interface{}) { //nolint:unused // Reserved for future use
	if !globals.Quiet && globals.Verbose >= 1 {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

func logDebug(globals GlobalFlags, format string, args ...interface{}) { //nolint:unused // Reserved for future use
	if globals.Verbose >= 2 {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		configPath  = flag.StringP("config", "c", "", "Path to .encr/registry.yaml (default: ./.encr/registry.yaml)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument (the command name), so
	// subcommand-specific flags like "serve --metrics-addr :9090" pass through
	// instead of being rejected by the global flag parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `encr - Entity-Native Callable Registry

encr registers ordinary Go functions against tracked, versioned entity
values, then calls them by name: every call is composed into an audited
input, classified into creation/mutation/detachment by comparing return
values to live working copies, and committed with full lineage.

Usage:
  encr <command> [options]

Commands:
  init          Create .encr/registry.yaml configuration
  invoke        Call a registered function
  get           Print a committed entity by content_id
  history       Print a lineage_id's content_id history
  replay        Invoke a batch of calls from a file
  serve         Expose Prometheus metrics over HTTP
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -c, --config      Path to .encr/registry.yaml
  -V, --version     Show version and exit

Examples:
  encr init
  encr invoke new_document --title "Notes" --body "hello"
  encr invoke add_section --doc @d_xyz --heading "Intro" --body "..."
  encr invoke extract_section --doc @d_xyz --index 0
  encr get @d_xyz
  encr history l_abc123
  encr replay calls.yaml
  encr serve --metrics-addr :9090

For detailed command help: encr <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("encr version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, *configPath, globals)
	case "invoke":
		runInvoke(cmdArgs, *configPath, globals)
	case "get":
		runGet(cmdArgs, *configPath, globals)
	case "history":
		runHistory(cmdArgs, *configPath, globals)
	case "replay":
		runReplay(cmdArgs, *configPath, globals)
	case "serve":
		runServe(cmdArgs, *configPath, globals)
	case "completion":
		runCompletion(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
