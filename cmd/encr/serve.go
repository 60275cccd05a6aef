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
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/encr/internal/errors"
	"github.com/kraklabs/encr/internal/metrics"
	"github.com/kraklabs/encr/internal/ui"
)

// runServe executes the 'serve' CLI command: open a registry, hold it in
// memory, and expose its Prometheus metrics over HTTP until interrupted,
// snapshotting on exit (§9's ambient metrics surface).
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", ":9090", "HTTP listen address for Prometheus metrics")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: encr serve [options]

Description:
  Hold a registry open in memory and expose its Prometheus metrics over
  HTTP until interrupted (Ctrl-C), snapshotting its store on exit.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfigOrDefault(configPath)
	reg, err := openRegistry(cfg)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	srv := metrics.Serve(*metricsAddr, nil)
	if !globals.Quiet {
		ui.Header("encr serve")
		fmt.Printf("  %s %s\n", ui.Label("Metrics:"), ui.DimText("http://"+*metricsAddr+"/metrics"))
		fmt.Printf("  %s\n", ui.DimText("press Ctrl-C to stop"))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	_ = srv.Close()
	if err := closeRegistry(reg, cfg); err != nil {
		errors.FatalError(err, globals.JSON)
	}
}
