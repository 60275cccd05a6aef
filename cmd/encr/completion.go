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
)

// runCompletion executes the 'completion' CLI command: print a static
// shell completion script for bash, zsh, or fish naming encr's
// subcommands.
func runCompletion(args []string, globals GlobalFlags) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: encr completion <bash|zsh|fish>\n")
		os.Exit(1)
	}

	commands := "init invoke get history replay serve completion"
	switch args[0] {
	case "bash":
		fmt.Printf("complete -W %q encr\n", commands)
	case "zsh":
		fmt.Printf("compadd %s\n", commands)
	case "fish":
		for _, c := range []string{"init", "invoke", "get", "history", "replay", "serve", "completion"} {
			fmt.Printf("complete -c encr -n __fish_use_subcommand -a %s\n", c)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unsupported shell %q (want bash, zsh, or fish)\n", args[0])
		os.Exit(1)
	}
}
